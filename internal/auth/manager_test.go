package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeRefresher counts refresh calls and returns a scripted outcome.
type fakeRefresher struct {
	calls atomic.Int32
	delay time.Duration
	cred  *Credential
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.cred.Clone(), nil
}

// fakeRevoker records which tokens were revoked.
type fakeRevoker struct {
	mu      sync.Mutex
	revoked []string
	err     error
}

func (f *fakeRevoker) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, tokenTypeHint+":"+token)
	return nil
}

func seededManager(t *testing.T, cred *Credential, refresher Refresher, revoker Revoker, now time.Time) *Manager {
	t.Helper()
	store := NewTokenStore("")
	if cred != nil {
		if err := store.Update(cred); err != nil {
			t.Fatalf("failed to seed store: %v", err)
		}
	}
	m := NewManager(store, refresher, revoker, 5*time.Minute)
	m.now = func() time.Time { return now }
	return m
}

func TestGetAccessTokenNotAuthenticated(t *testing.T) {
	m := seededManager(t, nil, &fakeRefresher{}, &fakeRevoker{}, time.Now())
	if _, err := m.GetAccessToken(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if m.State() != StateUnauthenticated {
		t.Fatalf("state = %s", m.State())
	}
}

func TestGetAccessTokenExpiryBoundary(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{cred: &Credential{
		AccessToken:  "AT-new",
		RefreshToken: "RT-new",
		ExpiresAt:    now.Add(2 * time.Hour),
	}}

	// Just outside the 5 minute lead: no refresh.
	m := seededManager(t, &Credential{
		AccessToken:  "AT-old",
		RefreshToken: "RT-old",
		ExpiresAt:    now.Add(301 * time.Second),
	}, refresher, &fakeRevoker{}, now)

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken failed: %v", err)
	}
	if token != "AT-old" {
		t.Fatalf("token = %q, want AT-old", token)
	}
	if refresher.calls.Load() != 0 {
		t.Fatalf("refresh triggered outside the lead window")
	}
	if m.State() != StateValid {
		t.Fatalf("state = %s, want valid", m.State())
	}

	// Just inside the lead: refresh fires.
	m = seededManager(t, &Credential{
		AccessToken:  "AT-old",
		RefreshToken: "RT-old",
		ExpiresAt:    now.Add(299 * time.Second),
	}, refresher, &fakeRevoker{}, now)

	if m.State() != StateNeedsRefresh {
		t.Fatalf("state = %s, want needs_refresh", m.State())
	}
	token, err = m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken failed: %v", err)
	}
	if token != "AT-new" {
		t.Fatalf("token = %q, want AT-new", token)
	}
	if refresher.calls.Load() != 1 {
		t.Fatalf("refresh calls = %d, want 1", refresher.calls.Load())
	}
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{
		delay: 50 * time.Millisecond,
		cred: &Credential{
			AccessToken:  "AT-new",
			RefreshToken: "RT-new",
			ExpiresAt:    now.Add(2 * time.Hour),
		},
	}
	m := seededManager(t, &Credential{
		AccessToken:  "AT-old",
		RefreshToken: "RT-old",
		ExpiresAt:    now.Add(time.Minute),
	}, refresher, &fakeRevoker{}, now)

	const callers = 25
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.GetAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if tokens[i] != "AT-new" {
			t.Fatalf("caller %d got %q, want AT-new", i, tokens[i])
		}
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", got)
	}
}

func TestTransientRefreshFailureServesStaleToken(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{err: fmt.Errorf("connection reset")}
	m := seededManager(t, &Credential{
		AccessToken:  "AT-old",
		RefreshToken: "RT-old",
		ExpiresAt:    now.Add(2 * time.Minute),
	}, refresher, &fakeRevoker{}, now)

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("expected stale token, got error: %v", err)
	}
	if token != "AT-old" {
		t.Fatalf("token = %q, want stale AT-old", token)
	}
}

func TestRefreshFailureAfterExpiry(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{err: fmt.Errorf("invalid_grant")}
	m := seededManager(t, &Credential{
		AccessToken:  "AT-old",
		RefreshToken: "RT-old",
		ExpiresAt:    now.Add(-time.Minute),
	}, refresher, &fakeRevoker{}, now)

	if _, err := m.GetAccessToken(context.Background()); !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
}

func TestExpiredWithoutRefreshTokenIsIrrecoverable(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{}
	m := seededManager(t, &Credential{
		AccessToken: "AT-old",
		ExpiresAt:   now.Add(-time.Minute),
	}, refresher, &fakeRevoker{}, now)

	if m.State() != StateIrrecoverable {
		t.Fatalf("state = %s, want irrecoverable", m.State())
	}
	if _, err := m.GetAccessToken(context.Background()); !errors.Is(err, ErrIrrecoverable) {
		t.Fatalf("expected ErrIrrecoverable, got %v", err)
	}
	// No network activity of any kind is allowed in this state.
	if refresher.calls.Load() != 0 {
		t.Fatalf("refresh attempted for an irrecoverable credential")
	}
}

func TestRotationKeepsPreviousRefreshToken(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{cred: &Credential{
		AccessToken: "AT-new",
		ExpiresAt:   now.Add(2 * time.Hour),
	}}
	m := seededManager(t, &Credential{
		AccessToken:  "AT-old",
		RefreshToken: "RT-old",
		ExpiresAt:    now.Add(time.Minute),
	}, refresher, &fakeRevoker{}, now)

	if _, err := m.GetAccessToken(context.Background()); err != nil {
		t.Fatalf("GetAccessToken failed: %v", err)
	}

	cred := m.Store().Current()
	if cred.RefreshToken != "RT-old" {
		t.Fatalf("refresh token = %q, want retained RT-old", cred.RefreshToken)
	}
	if cred.AccessToken != "AT-new" {
		t.Fatalf("access token = %q, want AT-new", cred.AccessToken)
	}
}

func TestAuthHeader(t *testing.T) {
	now := time.Now()
	m := seededManager(t, &Credential{
		AccessToken: "AT-1",
		ExpiresAt:   now.Add(time.Hour),
	}, &fakeRefresher{}, &fakeRevoker{}, now)

	header, err := m.AuthHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthHeader failed: %v", err)
	}
	if header["Authorization"] != "Bearer AT-1" {
		t.Fatalf("Authorization = %q", header["Authorization"])
	}
}

func TestRevokeAccessTokenKeepsRefreshToken(t *testing.T) {
	now := time.Now()
	revoker := &fakeRevoker{}
	m := seededManager(t, &Credential{
		AccessToken:  "AT-1",
		RefreshToken: "RT-1",
		ExpiresAt:    now.Add(time.Hour),
	}, &fakeRefresher{}, revoker, now)

	if err := m.RevokeAccessToken(context.Background()); err != nil {
		t.Fatalf("RevokeAccessToken failed: %v", err)
	}

	cred := m.Store().Current()
	if cred.AccessToken != "" {
		t.Fatal("access token not cleared")
	}
	if cred.RefreshToken != "RT-1" {
		t.Fatal("refresh token must survive access token revocation")
	}
	if len(revoker.revoked) != 1 || revoker.revoked[0] != "access_token:AT-1" {
		t.Fatalf("revoked = %v", revoker.revoked)
	}
}

func TestRevokeFailureLeavesTokensUntouched(t *testing.T) {
	now := time.Now()
	revoker := &fakeRevoker{err: fmt.Errorf("endpoint down")}
	m := seededManager(t, &Credential{
		AccessToken:  "AT-1",
		RefreshToken: "RT-1",
		ExpiresAt:    now.Add(time.Hour),
	}, &fakeRefresher{}, revoker, now)

	if err := m.RevokeAccessToken(context.Background()); err == nil {
		t.Fatal("expected error from failing revoker")
	}

	cred := m.Store().Current()
	if cred.AccessToken != "AT-1" || cred.RefreshToken != "RT-1" {
		t.Fatalf("tokens changed after failed revocation: %+v", cred)
	}
}
