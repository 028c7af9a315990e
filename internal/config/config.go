// Package config handles loading and persisting the agent configuration.
// The whole deployment is described by a single YAML document that holds the
// Twitter client identity and tokens next to unrelated sections (content
// generation, scheduling, HTTP server). Token updates performed at runtime
// must leave every other section of that document untouched.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default policy values applied when the configuration omits them.
const (
	// DefaultCallbackPort is the local port the OAuth callback server binds.
	DefaultCallbackPort = 8080

	// DefaultRequestTimeout bounds token endpoint and API calls.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRefreshLead is how long before expiry a token refresh is triggered.
	DefaultRefreshLead = 5 * time.Minute
)

// DefaultScopes are the permissions requested during authorization.
// offline.access is required so the provider issues a refresh token.
var DefaultScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

// Config is the root configuration structure for the posting agent.
// It is loaded once at startup and treated as immutable afterwards, except
// for the Twitter token fields which are owned by the token store.
type Config struct {
	// ConfigFilePath records where this configuration was loaded from.
	ConfigFilePath string `yaml:"-"`

	// Debug enables verbose logging when true.
	Debug bool `yaml:"debug"`

	// LoggingToFile redirects logs to rotating files instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file"`

	// ProxyURL routes outbound traffic through a proxy (socks5/http/https).
	ProxyURL string `yaml:"proxy-url"`

	// Server configures the management HTTP API.
	Server ServerConfig `yaml:"server"`

	// Twitter holds the OAuth client identity, tokens, and flow policy.
	Twitter TwitterConfig `yaml:"twitter"`

	// OpenAI configures the content generation backend.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Scheduler configures automatic posting times.
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// ServerConfig describes the HTTP API listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TwitterConfig carries the OAuth 2.0 client identity, the persisted
// credential fields, and the flow policy knobs. The token fields
// (access_token, refresh_token, token_expires_at) are rewritten by the token
// store; everything else is operator-owned.
type TwitterConfig struct {
	// ClientID identifies the OAuth application. Required.
	ClientID string `yaml:"client_id"`

	// ClientSecret selects confidential-client authentication when present.
	// Public clients leave it empty and send client_id in the request body.
	ClientSecret string `yaml:"client_secret"`

	// AccessToken is the persisted bearer token, if any.
	AccessToken string `yaml:"access_token"`

	// RefreshToken is the persisted refresh token, if any.
	RefreshToken string `yaml:"refresh_token"`

	// TokenExpiresAt is the persisted absolute expiry, RFC 3339.
	TokenExpiresAt string `yaml:"token_expires_at"`

	// Scopes are the permissions requested during authorization.
	Scopes []string `yaml:"scopes"`

	// CallbackPort is the local port for the OAuth redirect listener.
	CallbackPort int `yaml:"callback_port"`

	// RequestTimeoutSeconds bounds calls to the provider endpoints.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`

	// RefreshLeadSeconds is how long before expiry a refresh triggers.
	RefreshLeadSeconds int `yaml:"refresh_lead_seconds"`
}

// OpenAIConfig configures the chat-completions backend used to draft posts.
type OpenAIConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	PromptTemplate string  `yaml:"prompt_template"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

// SchedulerConfig configures automatic posting.
type SchedulerConfig struct {
	// TweetTimes lists local wall-clock times (HH:MM) to post every day.
	TweetTimes []string `yaml:"tweet_times"`
}

// LoadConfig reads and parses the YAML configuration file, applying defaults
// for omitted policy fields.
func LoadConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ConfigFilePath = configFile
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills policy fields the document omitted.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if len(c.Twitter.Scopes) == 0 {
		c.Twitter.Scopes = append([]string(nil), DefaultScopes...)
	}
	if c.Twitter.CallbackPort == 0 {
		c.Twitter.CallbackPort = DefaultCallbackPort
	}
	if c.Twitter.RequestTimeoutSeconds <= 0 {
		c.Twitter.RequestTimeoutSeconds = int(DefaultRequestTimeout / time.Second)
	}
	if c.Twitter.RefreshLeadSeconds <= 0 {
		c.Twitter.RefreshLeadSeconds = int(DefaultRefreshLead / time.Second)
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.MaxTokens <= 0 {
		c.OpenAI.MaxTokens = 300
	}
	if c.OpenAI.Temperature == 0 {
		c.OpenAI.Temperature = 0.8
	}
	if len(c.Scheduler.TweetTimes) == 0 {
		c.Scheduler.TweetTimes = []string{"09:00", "18:00"}
	}
}

// RedirectURI derives the OAuth redirect URI from the callback port.
func (t *TwitterConfig) RedirectURI() string {
	port := t.CallbackPort
	if port == 0 {
		port = DefaultCallbackPort
	}
	return fmt.Sprintf("http://localhost:%d/callback", port)
}

// RequestTimeout returns the provider request timeout as a duration.
func (t *TwitterConfig) RequestTimeout() time.Duration {
	if t.RequestTimeoutSeconds <= 0 {
		return DefaultRequestTimeout
	}
	return time.Duration(t.RequestTimeoutSeconds) * time.Second
}

// RefreshLead returns the refresh lead as a duration.
func (t *TwitterConfig) RefreshLead() time.Duration {
	if t.RefreshLeadSeconds <= 0 {
		return DefaultRefreshLead
	}
	return time.Duration(t.RefreshLeadSeconds) * time.Second
}

// ValidateClientIdentity checks that a usable OAuth client identity is
// configured. A missing client_id is fatal at startup.
func (t *TwitterConfig) ValidateClientIdentity() error {
	if strings.TrimSpace(t.ClientID) == "" {
		return &ConfigurationError{Field: "twitter.client_id", Message: "OAuth client_id is not configured"}
	}
	return nil
}

// ConfigurationError reports a missing or invalid configuration field.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Message)
}
