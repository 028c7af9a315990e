package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDocument = `# agent configuration
debug: false

twitter:
  client_id: "my-client"
  client_secret: "my-secret"
  access_token: "AT-old"
  refresh_token: "RT-old"
  token_expires_at: "2026-01-01T00:00:00Z"
  scopes:
    - tweet.read
    - tweet.write

# posting schedule, operator owned
scheduler:
  tweet_times:
    - "09:00"
    - "18:00"

openai:
  api_key: "sk-test"
  model: "gpt-4o-mini"
`

func writeSampleConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleDocument), 0o600); err != nil {
		t.Fatalf("failed to write sample config: %v", err)
	}
	return path
}

func TestSaveTokenFieldsPreservesUnrelatedSections(t *testing.T) {
	path := writeSampleConfig(t)

	err := SaveTokenFields(path, TokenFields{
		AccessToken:    "AT-new",
		RefreshToken:   "RT-new",
		TokenExpiresAt: "2026-06-01T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("SaveTokenFields failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("rewritten document does not parse: %v", err)
	}

	if cfg.Twitter.AccessToken != "AT-new" {
		t.Fatalf("access_token = %q", cfg.Twitter.AccessToken)
	}
	if cfg.Twitter.RefreshToken != "RT-new" {
		t.Fatalf("refresh_token = %q", cfg.Twitter.RefreshToken)
	}
	if cfg.Twitter.TokenExpiresAt != "2026-06-01T12:00:00Z" {
		t.Fatalf("token_expires_at = %q", cfg.Twitter.TokenExpiresAt)
	}

	// Operator-owned fields and unrelated sections must survive untouched.
	if cfg.Twitter.ClientID != "my-client" || cfg.Twitter.ClientSecret != "my-secret" {
		t.Fatalf("client identity changed: %+v", cfg.Twitter)
	}
	if len(cfg.Twitter.Scopes) != 2 || cfg.Twitter.Scopes[0] != "tweet.read" {
		t.Fatalf("scopes changed: %v", cfg.Twitter.Scopes)
	}
	if len(cfg.Scheduler.TweetTimes) != 2 || cfg.Scheduler.TweetTimes[1] != "18:00" {
		t.Fatalf("scheduler section changed: %v", cfg.Scheduler.TweetTimes)
	}
	if cfg.OpenAI.APIKey != "sk-test" || cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Fatalf("openai section changed: %+v", cfg.OpenAI)
	}

	// Comments survive the read-merge-write round trip.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to re-read document: %v", err)
	}
	if !strings.Contains(string(raw), "# posting schedule, operator owned") {
		t.Fatal("comment lost during token persist")
	}
}

func TestSaveTokenFieldsCreatesMissingSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	err := SaveTokenFields(path, TokenFields{AccessToken: "AT-1"})
	if err != nil {
		t.Fatalf("SaveTokenFields failed: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("rewritten document does not parse: %v", err)
	}
	if cfg.Twitter.AccessToken != "AT-1" {
		t.Fatalf("access_token = %q", cfg.Twitter.AccessToken)
	}
	if !cfg.Debug {
		t.Fatal("existing top-level key lost")
	}
}

func TestSaveTokenFieldsRejectsConcurrentWriter(t *testing.T) {
	path := writeSampleConfig(t)

	// Simulate another process holding the document.
	if err := os.WriteFile(path+".lock", []byte("12345"), 0o600); err != nil {
		t.Fatalf("failed to create lock file: %v", err)
	}

	err := SaveTokenFields(path, TokenFields{AccessToken: "AT-new"})
	if !errors.Is(err, ErrConfigLocked) {
		t.Fatalf("expected ErrConfigLocked, got %v", err)
	}

	// The document must be untouched after the rejected write.
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "AT-old") {
		t.Fatal("document modified despite lock")
	}
}

func TestSaveTokenFieldsReleasesLock(t *testing.T) {
	path := writeSampleConfig(t)

	if err := SaveTokenFields(path, TokenFields{AccessToken: "AT-1"}); err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Fatal("lock file left behind after save")
	}
	if err := SaveTokenFields(path, TokenFields{AccessToken: "AT-2"}); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
}
