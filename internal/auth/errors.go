package auth

import "errors"

// Lifecycle errors returned by the Manager. Callers branch with errors.Is;
// message text is never the contract.
var (
	// ErrNotAuthenticated means no access token is loaded at all. A full
	// authorization run is required before the agent can post.
	ErrNotAuthenticated = errors.New("no access token loaded; run the authorization flow first")

	// ErrIrrecoverable means the access token has expired and no refresh
	// token exists, so the agent cannot recover without a new interactive
	// authorization run.
	ErrIrrecoverable = errors.New("access token expired and no refresh token available; a new authorization run is required")

	// ErrRefreshFailed wraps a refresh attempt that failed while the old
	// token was already past its absolute expiry.
	ErrRefreshFailed = errors.New("token refresh failed and the previous token has expired")
)
