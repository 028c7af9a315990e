package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/postwing/postwing/internal/auth"
	log "github.com/sirupsen/logrus"
)

// DoRevoke invalidates the stored tokens with the provider and clears them
// from the configuration. The refresh token is revoked first so a partial
// failure never leaves a live refresh token behind a dead access token.
func DoRevoke(ctx context.Context, manager *auth.Manager) error {
	cred := manager.Store().Current()
	if cred == nil || (cred.AccessToken == "" && cred.RefreshToken == "") {
		return fmt.Errorf("no stored tokens to revoke")
	}

	if cred.RefreshToken != "" {
		if err := manager.RevokeRefreshToken(ctx); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
		log.Info("refresh token revoked")
	}

	if cred.AccessToken != "" {
		if err := manager.RevokeAccessToken(ctx); err != nil {
			if errors.Is(err, auth.ErrNotAuthenticated) {
				return nil
			}
			return fmt.Errorf("failed to revoke access token: %w", err)
		}
		log.Info("access token revoked")
	}

	fmt.Println("Stored tokens revoked. Run the authorization flow to reconnect.")
	return nil
}
