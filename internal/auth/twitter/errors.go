package twitter

import (
	"errors"
	"fmt"
	"net/http"
)

// AuthenticationError represents a failure in the authorization workflow.
// Every failure path in this package surfaces one of these (or an
// ExchangeError) so callers can branch on the Type instead of matching
// message text.
type AuthenticationError struct {
	// Type is a short machine readable identifier for the failure.
	Type string `json:"type"`
	// Message is a human-readable message describing the error.
	Message string `json:"message"`
	// Code is the HTTP status code (or exit code) associated with the error.
	Code int `json:"code"`
	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error returns a string representation of the authentication error.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is allows errors.Is matching against the package sentinels by Type.
func (e *AuthenticationError) Is(target error) bool {
	var other *AuthenticationError
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type
}

// Common authentication error values.
var (
	// ErrStateMismatch indicates the callback state did not match the one
	// issued with the session, a possible CSRF attempt.
	ErrStateMismatch = &AuthenticationError{
		Type:    "state_mismatch",
		Message: "OAuth state parameter does not match the issued session",
		Code:    http.StatusBadRequest,
	}

	// ErrMissingVerifier indicates a token exchange was attempted with a
	// session that has no code verifier.
	ErrMissingVerifier = &AuthenticationError{
		Type:    "missing_code_verifier",
		Message: "PKCE session has no code verifier; generate a new session first",
		Code:    http.StatusBadRequest,
	}

	// ErrPortInUse indicates the OAuth callback port is already bound.
	ErrPortInUse = &AuthenticationError{
		Type:    "port_in_use",
		Message: "OAuth callback port is already in use",
		Code:    13, // Special exit code for port-in-use
	}

	// ErrCallbackTimeout indicates no callback arrived in time.
	ErrCallbackTimeout = &AuthenticationError{
		Type:    "callback_timeout",
		Message: "Timeout waiting for OAuth callback",
		Code:    http.StatusRequestTimeout,
	}
)

// NewAuthenticationError creates a new authentication error with a cause based on a base error.
func NewAuthenticationError(baseErr *AuthenticationError, cause error) *AuthenticationError {
	return &AuthenticationError{
		Type:    baseErr.Type,
		Message: baseErr.Message,
		Code:    baseErr.Code,
		Cause:   cause,
	}
}

// AuthorizationDeniedError reports that the provider redirected back with an
// error instead of an authorization code. The provider values are carried
// verbatim; no token exchange is attempted after one of these.
type AuthorizationDeniedError struct {
	// Reason is the provider's error code (e.g. "access_denied").
	Reason string
	// Description is the provider's error_description, if any.
	Description string
}

// Error returns a string representation of the denial.
func (e *AuthorizationDeniedError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authorization denied: %s (%s)", e.Reason, e.Description)
	}
	return fmt.Sprintf("authorization denied: %s", e.Reason)
}

// ExchangeError reports a non-200 response from the token or revoke
// endpoint. Status code and response body are kept retrievable so the caller
// can decide how to react; nothing is retried at this layer.
type ExchangeError struct {
	// StatusCode is the HTTP status returned by the endpoint.
	StatusCode int
	// Body is the raw response body.
	Body string
}

// Error returns a string representation of the exchange failure.
func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// IsAuthenticationError checks if an error is an authentication error.
func IsAuthenticationError(err error) bool {
	var authenticationError *AuthenticationError
	return errors.As(err, &authenticationError)
}
