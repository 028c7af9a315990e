// Package twitter is the X API v2 client used for posting and account
// queries. Every request fetches a fresh bearer token from the credential
// manager immediately before the call; tokens are never cached here.
package twitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/postwing/postwing/internal/auth"
	"github.com/postwing/postwing/internal/config"
	"github.com/postwing/postwing/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// apiBaseURL is the X API v2 root.
const apiBaseURL = "https://api.twitter.com/2"

// maxPostLength is the provider's hard limit on post length.
const maxPostLength = 280

// ErrorKind classifies API failures once, at the HTTP-status boundary.
type ErrorKind string

const (
	// ErrKindRateLimited means the API asked us to slow down (429).
	ErrKindRateLimited ErrorKind = "rate_limited"
	// ErrKindUnauthorized means the credential was rejected (401).
	ErrKindUnauthorized ErrorKind = "unauthorized"
	// ErrKindForbidden means the granted scopes do not cover the call (403).
	ErrKindForbidden ErrorKind = "forbidden"
	// ErrKindOther covers every other non-2xx response.
	ErrKindOther ErrorKind = "other"
)

// APIError is a typed API failure carrying the status and body so callers
// branch on Kind instead of parsing message text.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
}

// Error returns a string representation of the API failure.
func (e *APIError) Error() string {
	return fmt.Sprintf("twitter API error (%s, status %d): %s", e.Kind, e.StatusCode, e.Body)
}

// classifyStatus maps an HTTP status to an ErrorKind.
func classifyStatus(status int) ErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return ErrKindRateLimited
	case http.StatusUnauthorized:
		return ErrKindUnauthorized
	case http.StatusForbidden:
		return ErrKindForbidden
	default:
		return ErrKindOther
	}
}

// Tweet describes one published post.
type Tweet struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at,omitempty"`
	URL       string `json:"url"`
}

// UserInfo describes the authenticated account.
type UserInfo struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
	TweetCount     int64  `json:"tweet_count"`
}

// Client is the X API v2 client.
type Client struct {
	manager    *auth.Manager
	httpClient *http.Client

	// baseURL is the API root, overridable for local testing.
	baseURL string
}

// NewClient creates an API client bound to the given credential manager,
// applying the configured outbound proxy and request timeout.
func NewClient(cfg *config.Config, manager *auth.Manager) *Client {
	httpClient := util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: cfg.Twitter.RequestTimeout()})
	return &Client{manager: manager, httpClient: httpClient, baseURL: apiBaseURL}
}

// PostTweet publishes a post and returns its ID and URL.
func (c *Client) PostTweet(ctx context.Context, content string) (*Tweet, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("post content is empty")
	}
	// The provider's limit counts characters, not bytes.
	if n := utf8.RuneCountInString(content); n > maxPostLength {
		return nil, fmt.Errorf("post content too long: %d characters", n)
	}

	body, _ := sjson.Set(`{}`, "text", content)

	respBody, err := c.do(ctx, http.MethodPost, "/tweets", strings.NewReader(body), http.StatusCreated)
	if err != nil {
		return nil, err
	}

	id := gjson.GetBytes(respBody, "data.id").String()
	if id == "" {
		return nil, fmt.Errorf("post creation returned no tweet id")
	}

	tweet := &Tweet{
		ID:   id,
		Text: content,
		URL:  tweetURL(id),
	}
	log.Infof("post published: %s", tweet.URL)
	return tweet, nil
}

// GetMe returns the authenticated account's profile and public metrics.
func (c *Client) GetMe(ctx context.Context) (*UserInfo, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/users/me?user.fields=public_metrics", nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	data := gjson.GetBytes(respBody, "data")
	if !data.Exists() {
		return nil, fmt.Errorf("users/me returned no data")
	}

	return &UserInfo{
		ID:             data.Get("id").String(),
		Username:       data.Get("username").String(),
		Name:           data.Get("name").String(),
		FollowersCount: data.Get("public_metrics.followers_count").Int(),
		FollowingCount: data.Get("public_metrics.following_count").Int(),
		TweetCount:     data.Get("public_metrics.tweet_count").Int(),
	}, nil
}

// RecentTweets returns up to count recent posts by the authenticated
// account. The API caps page size at 100.
func (c *Client) RecentTweets(ctx context.Context, count int) ([]Tweet, error) {
	if count <= 0 {
		count = 5
	}
	if count > 100 {
		count = 100
	}

	me, err := c.GetMe(ctx)
	if err != nil {
		return nil, err
	}

	// The tweets endpoint rejects max_results below 5.
	pageSize := count
	if pageSize < 5 {
		pageSize = 5
	}
	path := "/users/" + me.ID + "/tweets?max_results=" + strconv.Itoa(pageSize) + "&tweet.fields=created_at"
	respBody, err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var tweets []Tweet
	gjson.GetBytes(respBody, "data").ForEach(func(_, item gjson.Result) bool {
		tweets = append(tweets, Tweet{
			ID:        item.Get("id").String(),
			Text:      item.Get("text").String(),
			CreatedAt: item.Get("created_at").String(),
			URL:       tweetURL(item.Get("id").String()),
		})
		return len(tweets) < count
	})

	log.Infof("fetched %d recent posts", len(tweets))
	return tweets, nil
}

// TestConnection verifies that the credential works against the API.
func (c *Client) TestConnection(ctx context.Context) bool {
	if _, err := c.GetMe(ctx); err != nil {
		log.Errorf("twitter API connection test failed: %v", err)
		return false
	}
	return true
}

// do performs one authenticated API call. The bearer token is fetched from
// the manager for this call only.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, wantStatus int) ([]byte, error) {
	header, err := c.manager.AuthHeader(ctx)
	if err != nil {
		return nil, fmt.Errorf("no usable credential: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create API request: %w", err)
	}
	for key, value := range header {
		req.Header.Set(key, value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read API response: %w", err)
	}

	if resp.StatusCode != wantStatus {
		return nil, &APIError{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

func tweetURL(id string) string {
	return "https://twitter.com/user/status/" + id
}
