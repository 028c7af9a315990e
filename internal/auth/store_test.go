package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/postwing/postwing/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFromConfig(t *testing.T) {
	store := NewTokenStore("")
	err := store.LoadFromConfig(&config.TwitterConfig{
		AccessToken:    "AT-1",
		RefreshToken:   "RT-1",
		TokenExpiresAt: "2026-06-01T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("LoadFromConfig failed: %v", err)
	}

	cred := store.Current()
	if cred == nil {
		t.Fatal("no credential loaded")
	}
	if cred.AccessToken != "AT-1" || cred.RefreshToken != "RT-1" {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	want := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	if !cred.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", cred.ExpiresAt, want)
	}
}

func TestLoadFromConfigWithoutToken(t *testing.T) {
	store := NewTokenStore("")
	if err := store.LoadFromConfig(&config.TwitterConfig{}); err != nil {
		t.Fatalf("empty config must not error: %v", err)
	}
	if store.Current() != nil {
		t.Fatal("credential materialized out of nothing")
	}
}

func TestLoadFromConfigBadTimestamp(t *testing.T) {
	store := NewTokenStore("")
	err := store.LoadFromConfig(&config.TwitterConfig{
		AccessToken:    "AT-1",
		TokenExpiresAt: "yesterday",
	})
	if err == nil {
		t.Fatal("malformed token_expires_at accepted")
	}
}

func TestUpdatePersistsToConfigFile(t *testing.T) {
	path := writeConfigFile(t, "twitter:\n  client_id: \"my-client\"\nscheduler:\n  tweet_times:\n    - \"09:00\"\n")
	store := NewTokenStore(path)

	expiresAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	err := store.Update(&Credential{
		AccessToken:  "AT-1",
		RefreshToken: "RT-1",
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("persisted document does not parse: %v", err)
	}
	if cfg.Twitter.AccessToken != "AT-1" || cfg.Twitter.RefreshToken != "RT-1" {
		t.Fatalf("tokens not persisted: %+v", cfg.Twitter)
	}
	if cfg.Twitter.TokenExpiresAt != "2026-06-01T12:00:00Z" {
		t.Fatalf("token_expires_at = %q", cfg.Twitter.TokenExpiresAt)
	}
	if cfg.Twitter.ClientID != "my-client" {
		t.Fatal("client identity lost during persist")
	}
	if len(cfg.Scheduler.TweetTimes) != 1 {
		t.Fatal("unrelated section lost during persist")
	}
}

func TestUpdateKeepsMemoryOnPersistFailure(t *testing.T) {
	// A directory that does not exist makes every write fail.
	store := NewTokenStore(filepath.Join(t.TempDir(), "missing", "config.yaml"))

	err := store.Update(&Credential{AccessToken: "AT-1", ExpiresAt: time.Now().Add(time.Hour)})
	if err == nil {
		t.Fatal("expected persistence error")
	}

	cred := store.Current()
	if cred == nil || cred.AccessToken != "AT-1" {
		t.Fatal("in-memory credential rolled back on persist failure")
	}
}

func TestClearAccessToken(t *testing.T) {
	path := writeConfigFile(t, "twitter:\n  client_id: \"my-client\"\n")
	store := NewTokenStore(path)
	if err := store.Update(&Credential{AccessToken: "AT-1", RefreshToken: "RT-1"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := store.ClearAccessToken(); err != nil {
		t.Fatalf("ClearAccessToken failed: %v", err)
	}

	cred := store.Current()
	if cred.AccessToken != "" || cred.RefreshToken != "RT-1" {
		t.Fatalf("unexpected credential after clear: %+v", cred)
	}

	raw, _ := os.ReadFile(path)
	if strings.Contains(string(raw), "AT-1") {
		t.Fatal("cleared access token still on disk")
	}
	if !strings.Contains(string(raw), "RT-1") {
		t.Fatal("refresh token dropped from disk")
	}
}

func TestCurrentReturnsCopy(t *testing.T) {
	store := NewTokenStore("")
	if err := store.Update(&Credential{AccessToken: "AT-1"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	cred := store.Current()
	cred.AccessToken = "tampered"

	if store.Current().AccessToken != "AT-1" {
		t.Fatal("caller mutation leaked into the store")
	}
}
