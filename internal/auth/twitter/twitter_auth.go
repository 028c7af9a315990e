package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/postwing/postwing/internal/auth"
	"github.com/postwing/postwing/internal/config"
	"github.com/postwing/postwing/internal/util"
	log "github.com/sirupsen/logrus"
)

// OAuth 2.0 endpoints for the X (Twitter) API v2.
const (
	AuthURL   = "https://twitter.com/i/oauth2/authorize"
	TokenURL  = "https://api.twitter.com/2/oauth2/token"
	RevokeURL = "https://api.twitter.com/2/oauth2/revoke"
)

// tokenResponse represents the response structure from the token endpoint.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// TwitterAuth handles the X OAuth 2.0 authorization-code flow with PKCE.
// It supports both public clients (client_id in the request body) and
// confidential clients (HTTP Basic authentication with the client secret).
// The client identity is loaded once at startup and never mutated.
type TwitterAuth struct {
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	httpClient   *http.Client
	timeout      time.Duration

	// Endpoint URLs, overridable for local testing.
	authURL   string
	tokenURL  string
	revokeURL string
}

// NewTwitterAuth creates a new X authentication service from the application
// configuration, applying the configured outbound proxy and request timeout.
func NewTwitterAuth(cfg *config.Config) *TwitterAuth {
	httpClient := util.SetProxy(cfg.ProxyURL, &http.Client{})
	return &TwitterAuth{
		clientID:     cfg.Twitter.ClientID,
		clientSecret: cfg.Twitter.ClientSecret,
		redirectURI:  cfg.Twitter.RedirectURI(),
		scopes:       cfg.Twitter.Scopes,
		httpClient:   httpClient,
		timeout:      cfg.Twitter.RequestTimeout(),
		authURL:      AuthURL,
		tokenURL:     TokenURL,
		revokeURL:    RevokeURL,
	}
}

// GenerateAuthURL composes the provider authorization URL for the given PKCE
// session. Pure construction, no network call.
func (o *TwitterAuth) GenerateAuthURL(session *Session) (string, error) {
	if strings.TrimSpace(o.clientID) == "" {
		return "", fmt.Errorf("client_id is required to build an authorization URL")
	}
	if session == nil || session.CodeChallenge == "" {
		return "", fmt.Errorf("PKCE session is required")
	}

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {o.clientID},
		"redirect_uri":          {o.redirectURI},
		"scope":                 {strings.Join(o.scopes, " ")},
		"state":                 {session.State},
		"code_challenge":        {session.CodeChallenge},
		"code_challenge_method": {"S256"},
	}

	return fmt.Sprintf("%s?%s", o.authURL, params.Encode()), nil
}

// ExchangeCode exchanges an authorization code for an access/refresh token
// pair. The session's verifier proves possession; a session without one
// fails immediately without touching the network.
func (o *TwitterAuth) ExchangeCode(ctx context.Context, code string, session *Session) (*auth.Credential, error) {
	if session == nil || session.CodeVerifier == "" {
		return nil, ErrMissingVerifier
	}

	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {o.redirectURI},
		"code_verifier": {session.CodeVerifier},
	}

	log.Info("exchanging authorization code for access token")
	return o.doTokenRequest(ctx, data)
}

// Refresh exchanges a refresh token for a new access token. Providers may
// rotate the refresh token: when the response carries a new one it replaces
// the old value, otherwise the existing refresh token is retained unchanged.
func (o *TwitterAuth) Refresh(ctx context.Context, refreshToken string) (*auth.Credential, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	log.Debug("refreshing access token")
	cred, err := o.doTokenRequest(ctx, data)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

// Revoke invalidates a token with the provider. tokenTypeHint is either
// "access_token" or "refresh_token". Failure is reported, never retried.
func (o *TwitterAuth) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	data := url.Values{
		"token":           {token},
		"token_type_hint": {tokenTypeHint},
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, o.revokeURL, strings.NewReader(o.withClientAuth(data).Encode()))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	o.setFormHeaders(req)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read revoke response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &ExchangeError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	log.Infof("%s revoked", tokenTypeHint)
	return nil
}

// doTokenRequest posts a form-encoded grant to the token endpoint and maps
// the JSON response to a Credential. Non-200 responses surface as an
// ExchangeError carrying status and body; network timeouts propagate as-is
// and are treated as transient by the caller.
func (o *TwitterAuth) doTokenRequest(ctx context.Context, data url.Values) (*auth.Credential, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	body := o.withClientAuth(data)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, o.tokenURL, strings.NewReader(body.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	o.setFormHeaders(req)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("failed to close response body: %v", errClose)
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var tokenResp tokenResponse
	if err = json.Unmarshal(respBody, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	return &auth.Credential{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		TokenType:    tokenResp.TokenType,
		Scope:        tokenResp.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}, nil
}

// withClientAuth applies the client authentication rule to the request body:
// public clients carry client_id in the form, confidential clients rely on
// the Basic header set by setFormHeaders.
func (o *TwitterAuth) withClientAuth(data url.Values) url.Values {
	if o.clientSecret == "" {
		data.Set("client_id", o.clientID)
	}
	return data
}

// setFormHeaders sets the form content type and, for confidential clients,
// HTTP Basic authentication with the client secret.
func (o *TwitterAuth) setFormHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if o.clientSecret != "" {
		req.SetBasicAuth(o.clientID, o.clientSecret)
	}
}
