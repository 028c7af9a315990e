package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/postwing/postwing/internal/config"
	log "github.com/sirupsen/logrus"
)

// TokenStore holds the current credential in memory and mirrors every
// successful mutation into the YAML config document with read-merge-write
// semantics, so unrelated configuration sections survive each write.
//
// A persistence failure is logged and surfaced but never rolls back the
// in-memory update: losing durability is preferable to losing the ability
// to keep posting for the remainder of the process.
type TokenStore struct {
	mu         sync.RWMutex
	cred       *Credential
	configPath string
}

// NewTokenStore creates a store persisting into the given config document.
func NewTokenStore(configPath string) *TokenStore {
	return &TokenStore{configPath: configPath}
}

// LoadFromConfig seeds the store from the persisted twitter section.
// A document without an access token leaves the store empty.
func (s *TokenStore) LoadFromConfig(tw *config.TwitterConfig) error {
	if tw == nil || tw.AccessToken == "" {
		return nil
	}

	cred := &Credential{
		AccessToken:  tw.AccessToken,
		RefreshToken: tw.RefreshToken,
		TokenType:    "bearer",
	}
	if tw.TokenExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, tw.TokenExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to parse token_expires_at: %w", err)
		}
		cred.ExpiresAt = expiresAt
	}

	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	log.Info("stored credential loaded")
	return nil
}

// Current returns a copy of the held credential, or nil when none is
// loaded. Reads never block on persistence and never perform I/O.
func (s *TokenStore) Current() *Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Clone()
}

// Update atomically replaces the credential and mirrors it to disk.
// Readers never observe a half-written credential. The returned error, if
// any, concerns persistence only; the in-memory update always sticks.
func (s *TokenStore) Update(cred *Credential) error {
	s.mu.Lock()
	s.cred = cred.Clone()
	s.mu.Unlock()

	return s.persist(cred)
}

// ClearAccessToken drops the access token (after revocation) while leaving
// the refresh token untouched unless it was explicitly revoked too.
func (s *TokenStore) ClearAccessToken() error {
	s.mu.Lock()
	var snapshot *Credential
	if s.cred != nil {
		s.cred.AccessToken = ""
		snapshot = s.cred.Clone()
	}
	s.mu.Unlock()

	if snapshot == nil {
		return nil
	}
	return s.persist(snapshot)
}

// ClearRefreshToken drops the refresh token after it was revoked.
func (s *TokenStore) ClearRefreshToken() error {
	s.mu.Lock()
	var snapshot *Credential
	if s.cred != nil {
		s.cred.RefreshToken = ""
		snapshot = s.cred.Clone()
	}
	s.mu.Unlock()

	if snapshot == nil {
		return nil
	}
	return s.persist(snapshot)
}

// persist merges the credential-owned fields into the config document.
func (s *TokenStore) persist(cred *Credential) error {
	if s.configPath == "" {
		return nil
	}

	expiresAt := ""
	if !cred.ExpiresAt.IsZero() {
		expiresAt = cred.ExpiresAt.Format(time.RFC3339)
	}

	err := config.SaveTokenFields(s.configPath, config.TokenFields{
		AccessToken:    cred.AccessToken,
		RefreshToken:   cred.RefreshToken,
		TokenExpiresAt: expiresAt,
	})
	if err != nil {
		log.Errorf("failed to persist credential (in-memory token remains usable): %v", err)
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	return nil
}
