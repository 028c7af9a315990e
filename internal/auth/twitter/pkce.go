// Package twitter implements the OAuth 2.0 authorization-code flow with PKCE
// against the X (Twitter) API v2: session generation, authorization URL
// composition, callback capture, token exchange, refresh, and revocation.
package twitter

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// PKCECodes holds a PKCE code verifier and its derived challenge
// following RFC 7636 for the OAuth 2.0 PKCE extension.
type PKCECodes struct {
	// CodeVerifier is the 43-128 character URL-safe random secret.
	CodeVerifier string
	// CodeChallenge is base64url(SHA-256(verifier)) without padding.
	CodeChallenge string
}

// Session carries everything generated for a single authorization attempt.
// A session is consumed exactly once by the token exchange and discarded
// afterwards, whether the attempt succeeded or not.
type Session struct {
	PKCECodes

	// State is the anti-CSRF token echoed back by the provider.
	State string
}

// GeneratePKCECodes generates a PKCE code verifier and challenge pair.
// Only the client holding the verifier can later redeem the authorization
// code, which protects the flow against code interception.
func GeneratePKCECodes() (*PKCECodes, error) {
	codeVerifier, err := generateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to generate code verifier: %w", err)
	}

	return &PKCECodes{
		CodeVerifier:  codeVerifier,
		CodeChallenge: generateCodeChallenge(codeVerifier),
	}, nil
}

// GenerateState creates a URL-safe random state token with 32 bytes of
// entropy for CSRF protection.
func GenerateState() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes), nil
}

// NewSession generates a fresh PKCE session for one authorization attempt.
// Entropy-source failure is the only error condition and aborts the attempt.
func NewSession() (*Session, error) {
	codes, err := GeneratePKCECodes()
	if err != nil {
		return nil, err
	}
	state, err := GenerateState()
	if err != nil {
		return nil, err
	}
	return &Session{PKCECodes: *codes, State: state}, nil
}

// generateCodeVerifier creates a cryptographically random string
// of 43 characters using URL-safe base64 encoding without padding.
func generateCodeVerifier() (string, error) {
	// 32 random bytes encode to 43 base64url characters.
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes), nil
}

// generateCodeChallenge creates a SHA256 hash of the code verifier
// and encodes it using URL-safe base64 encoding without padding.
func generateCodeChallenge(codeVerifier string) string {
	hash := sha256.Sum256([]byte(codeVerifier))
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:])
}

// VerifyState compares the state issued with this session against the state
// returned on the callback. The values are compared as opaque strings; any
// mismatch, or a session without a state, fails verification and the whole
// authorization attempt must be aborted.
func (s *Session) VerifyState(received string) error {
	if s == nil || s.State == "" {
		return NewAuthenticationError(ErrStateMismatch, fmt.Errorf("no local state recorded for this session"))
	}
	if received != s.State {
		return ErrStateMismatch
	}
	return nil
}
