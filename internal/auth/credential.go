// Package auth owns the credential lifecycle for the posting agent: the
// in-memory token store mirrored into the YAML config document, and the
// manager that keeps a valid bearer token available to every collaborator
// without human interaction after the initial authorization run.
package auth

import (
	"time"
)

// Credential is the OAuth 2.0 token material for the single configured
// account. ExpiresAt is always derived from the token endpoint's expires_in
// at issuance time, never guessed.
type Credential struct {
	// AccessToken is the opaque bearer value presented to the API.
	AccessToken string

	// RefreshToken allows unattended renewal. Its absence permanently
	// blocks automatic refresh.
	RefreshToken string

	// TokenType is the token type reported by the provider, normally "bearer".
	TokenType string

	// Scope is the space-joined set of granted permissions.
	Scope string

	// ExpiresAt is the absolute expiry of the access token.
	ExpiresAt time.Time
}

// Clone returns a copy so callers can never mutate the stored credential.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	copied := *c
	return &copied
}

// Expired reports whether the access token has passed its absolute expiry.
func (c *Credential) Expired(now time.Time) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// NeedsRefresh reports whether the token is inside the refresh lead window,
// i.e. now >= expires_at - lead. Refreshing ahead of expiry avoids handing
// out a token that expires mid-request.
func (c *Credential) NeedsRefresh(now time.Time, lead time.Duration) bool {
	if c == nil || c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt.Add(-lead))
}
