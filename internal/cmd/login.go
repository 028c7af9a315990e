// Package cmd implements the interactive workflows started from the command
// line: the OAuth authorization run and token revocation.
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/postwing/postwing/internal/auth"
	"github.com/postwing/postwing/internal/auth/twitter"
	"github.com/postwing/postwing/internal/browser"
	"github.com/postwing/postwing/internal/config"
	"github.com/postwing/postwing/internal/util"
	log "github.com/sirupsen/logrus"
)

// callbackWaitTimeout bounds how long the login flow waits for the operator
// to finish the browser consent step.
const callbackWaitTimeout = 5 * time.Minute

// LoginOptions control the authorization run.
type LoginOptions struct {
	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool
	// CallbackPort overrides the configured local callback port when > 0.
	CallbackPort int
}

// DoTwitterLogin runs one full authorization-code flow with PKCE: build a
// session, send the operator to the provider's consent page, capture the
// redirect (automatically or by manual paste), verify state, exchange the
// code, and persist the resulting credential.
func DoTwitterLogin(ctx context.Context, cfg *config.Config, store *auth.TokenStore, opts LoginOptions) error {
	if err := cfg.Twitter.ValidateClientIdentity(); err != nil {
		return err
	}
	if opts.CallbackPort > 0 {
		cfg.Twitter.CallbackPort = opts.CallbackPort
	}

	session, err := twitter.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create authorization session: %w", err)
	}

	authSvc := twitter.NewTwitterAuth(cfg)
	authURL, err := authSvc.GenerateAuthURL(session)
	if err != nil {
		return err
	}

	result, err := acceptCallback(cfg, authURL, opts)
	if err != nil {
		return err
	}
	if result.Denied() {
		return &twitter.AuthorizationDeniedError{Reason: result.Error, Description: result.ErrorDescription}
	}

	// The echoed state must match before the code is worth anything. A
	// manually pasted bare code carries no state to check.
	if result.State != "" {
		if err = session.VerifyState(result.State); err != nil {
			return err
		}
	} else {
		log.Warn("callback carried no state parameter, skipping state verification")
	}

	cred, err := authSvc.ExchangeCode(ctx, result.Code, session)
	if err != nil {
		return fmt.Errorf("code exchange failed: %w", err)
	}

	if err = store.Update(cred); err != nil {
		return err
	}

	log.Infof("authorization complete, access token %s stored", util.HideToken(cred.AccessToken))
	if cred.RefreshToken == "" {
		log.Warn("provider issued no refresh token; the credential cannot be renewed automatically")
	}
	fmt.Println("Authentication successful. You can now start the agent.")
	return nil
}

// acceptCallback captures the OAuth redirect. It prefers the automatic local
// callback server and falls back to manual paste when the port is taken or
// the redirect never arrives.
func acceptCallback(cfg *config.Config, authURL string, opts LoginOptions) (*twitter.CallbackResult, error) {
	server := twitter.NewOAuthServer(cfg.Twitter.CallbackPort)
	err := server.Start()
	if err != nil {
		if errors.Is(err, twitter.ErrPortInUse) {
			log.Warnf("callback port %d is in use, falling back to manual paste", cfg.Twitter.CallbackPort)
			presentAuthURL(authURL, opts)
			return readManualCallback()
		}
		return nil, err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(stopCtx)
	}()

	presentAuthURL(authURL, opts)
	fmt.Printf("Waiting for the callback on %s ...\n", cfg.Twitter.RedirectURI())

	result, err := server.WaitForCallback(callbackWaitTimeout)
	if err != nil {
		if errors.Is(err, twitter.ErrCallbackTimeout) {
			log.Warn("no callback received, falling back to manual paste")
			return readManualCallback()
		}
		return nil, err
	}
	return result, nil
}

// presentAuthURL opens the consent page in a browser, or prints the URL when
// that is disabled or fails.
func presentAuthURL(authURL string, opts LoginOptions) {
	if !opts.NoBrowser {
		if err := browser.OpenURL(authURL); err == nil {
			fmt.Println("A browser window was opened for authorization.")
			return
		}
		log.Warn("failed to open browser, falling back to printing the URL")
	}
	fmt.Printf("Open this URL in a browser to authorize the agent:\n\n%s\n\n", authURL)
}

// readManualCallback asks the operator to paste the redirect URL (or the
// bare authorization code) and parses it.
func readManualCallback() (*twitter.CallbackResult, error) {
	fmt.Print("Paste the full redirect URL (or just the code parameter): ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read callback input: %w", err)
	}

	result, err := twitter.ParseCallbackURL(strings.TrimSpace(line))
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no callback input provided")
	}
	return result, nil
}
