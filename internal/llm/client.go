// Package llm generates post content through an OpenAI-compatible
// chat-completions endpoint.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/postwing/postwing/internal/config"
	"github.com/postwing/postwing/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// maxPostLength is the provider's hard limit on post length.
const maxPostLength = 280

// Client calls the configured chat-completions backend to draft posts.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client

	// promptMu guards promptTemplate, which config hot reload rewrites
	// while the scheduler is generating.
	promptMu       sync.RWMutex
	promptTemplate string
}

// NewClient creates an LLM client from the application configuration,
// applying the configured outbound proxy.
func NewClient(cfg *config.Config) *Client {
	httpClient := util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: cfg.Twitter.RequestTimeout()})
	return &Client{
		apiKey:         cfg.OpenAI.APIKey,
		baseURL:        strings.TrimRight(cfg.OpenAI.BaseURL, "/"),
		model:          cfg.OpenAI.Model,
		promptTemplate: cfg.OpenAI.PromptTemplate,
		maxTokens:      cfg.OpenAI.MaxTokens,
		temperature:    cfg.OpenAI.Temperature,
		httpClient:     httpClient,
	}
}

// SetPromptTemplate replaces the default prompt, used by config hot reload.
func (c *Client) SetPromptTemplate(prompt string) {
	c.promptMu.Lock()
	c.promptTemplate = prompt
	c.promptMu.Unlock()
}

// GeneratePost drafts one post. customPrompt overrides the configured
// prompt template when non-empty. Output longer than the post limit is
// truncated with an ellipsis.
func (c *Client) GeneratePost(ctx context.Context, customPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("LLM api_key is not configured")
	}

	prompt := customPrompt
	if prompt == "" {
		c.promptMu.RLock()
		prompt = c.promptTemplate
		c.promptMu.RUnlock()
	}
	if prompt == "" {
		return "", fmt.Errorf("no prompt template configured for post generation")
	}

	log.Infof("generating post with model %s", c.model)

	content, err := c.chatCompletion(ctx, prompt, c.maxTokens)
	if err != nil {
		return "", err
	}

	content = strings.TrimSpace(strings.Trim(strings.TrimSpace(content), `"`))
	if content == "" {
		return "", fmt.Errorf("model returned an empty completion")
	}
	// The post limit counts characters; truncation must not split a rune.
	if runes := []rune(content); len(runes) > maxPostLength {
		log.Warnf("generated post too long (%d chars), truncating", len(runes))
		content = string(runes[:maxPostLength-3]) + "..."
	}
	return content, nil
}

// GenerateMultiple drafts up to count posts, skipping failed attempts.
func (c *Client) GenerateMultiple(ctx context.Context, count int) []string {
	posts := make([]string, 0, count)
	for i := 0; i < count; i++ {
		post, err := c.GeneratePost(ctx, "")
		if err != nil {
			log.Warnf("post %d/%d generation failed: %v", i+1, count, err)
			continue
		}
		posts = append(posts, post)
	}
	log.Infof("generated %d/%d posts", len(posts), count)
	return posts
}

// ValidateAPIKey sends a minimal completion request to verify the key.
func (c *Client) ValidateAPIKey(ctx context.Context) bool {
	if c.apiKey == "" {
		return false
	}
	_, err := c.chatCompletion(ctx, "Hello", 5)
	if err != nil {
		log.Errorf("LLM API key validation failed: %v", err)
		return false
	}
	return true
}

// chatCompletion posts a single-message chat request and returns the first
// choice's content.
func (c *Client) chatCompletion(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := `{}`
	body, _ = sjson.Set(body, "model", c.model)
	body, _ = sjson.Set(body, "messages.0.role", "user")
	body, _ = sjson.Set(body, "messages.0.content", prompt)
	body, _ = sjson.Set(body, "max_tokens", maxTokens)
	body, _ = sjson.Set(body, "temperature", c.temperature)
	body, _ = sjson.Set(body, "frequency_penalty", 0.5)
	body, _ = sjson.Set(body, "presence_penalty", 0.5)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion endpoint returned status %d: %s", resp.StatusCode, string(respBody))
	}

	content := gjson.GetBytes(respBody, "choices.0.message.content").String()
	return content, nil
}
