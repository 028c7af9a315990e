package auth

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// State is the lifecycle state of the managed credential.
type State string

const (
	// StateValid means the access token is usable without any I/O.
	StateValid State = "valid"
	// StateNeedsRefresh means the token entered the refresh lead window.
	StateNeedsRefresh State = "needs_refresh"
	// StateRefreshing means a refresh call is currently in flight.
	StateRefreshing State = "refreshing"
	// StateUnauthenticated means no access token is loaded at all.
	StateUnauthenticated State = "unauthenticated"
	// StateIrrecoverable means the token expired and no refresh token exists.
	StateIrrecoverable State = "irrecoverable"
)

// Refresher exchanges a refresh token for a fresh credential.
// The OAuth client implements it; tests substitute fakes.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// Revoker invalidates a token with the provider.
type Revoker interface {
	Revoke(ctx context.Context, token, tokenTypeHint string) error
}

// Manager is the always-on credential manager consulted by every
// collaborator before an authenticated call. It decides when a refresh is
// needed, serializes refresh attempts, and hands out the current bearer
// token. One explicitly constructed instance is injected wherever needed;
// there is no process-global token state.
type Manager struct {
	store     *TokenStore
	refresher Refresher
	revoker   Revoker
	lead      time.Duration

	// now is the clock source, replaceable in tests.
	now func() time.Time

	// group collapses concurrent refresh attempts into a single provider
	// call. Providers rotate refresh tokens, so two parallel redemptions
	// of the same refresh token would invalidate one of them and leave
	// the agent unrecoverable.
	group      singleflight.Group
	refreshing atomic.Bool
}

// NewManager creates a credential manager around the given store and OAuth
// client. lead is how long before absolute expiry a refresh is triggered.
func NewManager(store *TokenStore, refresher Refresher, revoker Revoker, lead time.Duration) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		revoker:   revoker,
		lead:      lead,
		now:       time.Now,
	}
}

// Store exposes the underlying token store for the authorization workflow.
func (m *Manager) Store() *TokenStore {
	return m.store
}

// State reports the current lifecycle state without side effects.
func (m *Manager) State() State {
	if m.refreshing.Load() {
		return StateRefreshing
	}
	cred := m.store.Current()
	now := m.now()
	switch {
	case cred == nil || cred.AccessToken == "":
		return StateUnauthenticated
	case !cred.NeedsRefresh(now, m.lead):
		return StateValid
	case cred.RefreshToken == "" && cred.Expired(now):
		return StateIrrecoverable
	default:
		return StateNeedsRefresh
	}
}

// GetAccessToken is the sole entry point used by collaborators. A valid
// token is returned immediately with no I/O; a token inside the refresh
// lead window triggers exactly one refresh no matter how many callers
// arrive concurrently; a transient refresh failure keeps serving the stale
// token until its absolute expiry.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	cred := m.store.Current()
	if cred == nil || cred.AccessToken == "" {
		return "", ErrNotAuthenticated
	}

	now := m.now()
	if !cred.NeedsRefresh(now, m.lead) {
		return cred.AccessToken, nil
	}

	if cred.RefreshToken == "" {
		if cred.Expired(now) {
			return "", ErrIrrecoverable
		}
		// No way to refresh; serve the token until it actually expires.
		log.Warn("access token near expiry and no refresh token available")
		return cred.AccessToken, nil
	}

	token, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.refreshLocked(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// refreshLocked performs one refresh attempt. It runs under singleflight,
// so concurrent callers block on the same in-flight attempt and share its
// outcome instead of redeeming the refresh token in parallel.
func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	// Re-read after acquiring the flight: a caller that queued behind an
	// earlier refresh finds a fresh credential here and returns it.
	cred := m.store.Current()
	if cred == nil || cred.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	now := m.now()
	if !cred.NeedsRefresh(now, m.lead) {
		return cred.AccessToken, nil
	}

	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	newCred, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		if !cred.Expired(m.now()) {
			// Transient failure with a still-usable token: keep serving it.
			log.Warnf("token refresh failed, serving current token until expiry: %v", err)
			return cred.AccessToken, nil
		}
		if cred.RefreshToken == "" {
			return "", ErrIrrecoverable
		}
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// Refresh-token rotation: a response without a new refresh token keeps
	// the previous one.
	if newCred.RefreshToken == "" {
		newCred.RefreshToken = cred.RefreshToken
	}

	if errPersist := m.store.Update(newCred); errPersist != nil {
		// The new token is already live in memory; durability was lost, not
		// the credential.
		log.Warnf("refreshed token not persisted: %v", errPersist)
	}

	log.Info("access token refreshed")
	return newCred.AccessToken, nil
}

// ValidateCredentials reports whether stored credentials are usable: an
// access token is present together with the means to keep it valid (either
// it has not expired, or a refresh token exists).
func (m *Manager) ValidateCredentials() bool {
	cred := m.store.Current()
	if cred == nil || cred.AccessToken == "" {
		return false
	}
	return cred.RefreshToken != "" || !cred.Expired(m.now())
}

// AuthHeader returns the Authorization header for an authenticated API
// call. Callers fetch it immediately before every request and never cache
// it beyond a single call.
func (m *Manager) AuthHeader(ctx context.Context) (map[string]string, error) {
	token, err := m.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// RevokeAccessToken invalidates the current access token with the provider
// and clears it from the store. The refresh token is left untouched.
func (m *Manager) RevokeAccessToken(ctx context.Context) error {
	cred := m.store.Current()
	if cred == nil || cred.AccessToken == "" {
		return ErrNotAuthenticated
	}
	if err := m.revoker.Revoke(ctx, cred.AccessToken, "access_token"); err != nil {
		return fmt.Errorf("revocation failed, token state unchanged: %w", err)
	}
	return m.store.ClearAccessToken()
}

// RevokeRefreshToken explicitly invalidates the refresh token as well.
func (m *Manager) RevokeRefreshToken(ctx context.Context) error {
	cred := m.store.Current()
	if cred == nil || cred.RefreshToken == "" {
		return fmt.Errorf("no refresh token to revoke")
	}
	if err := m.revoker.Revoke(ctx, cred.RefreshToken, "refresh_token"); err != nil {
		return fmt.Errorf("revocation failed, token state unchanged: %w", err)
	}
	return m.store.ClearRefreshToken()
}
