package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/postwing/postwing/internal/auth"
	"github.com/postwing/postwing/internal/buildinfo"
	"github.com/postwing/postwing/internal/llm"
	"github.com/postwing/postwing/internal/logging"
	"github.com/postwing/postwing/internal/scheduler"
	"github.com/postwing/postwing/internal/twitter"
	log "github.com/sirupsen/logrus"
)

// maxGenerateCount caps how many drafts one request may generate.
const maxGenerateCount = 5

// maxRecentCount caps how many recent posts one request may fetch.
const maxRecentCount = 20

// Handlers carries the collaborators the route handlers depend on.
type Handlers struct {
	manager   *auth.Manager
	client    *twitter.Client
	generator *llm.Client
	sched     *scheduler.Scheduler
	startTime time.Time
}

// NewHandlers wires the route handlers to their collaborators.
func NewHandlers(manager *auth.Manager, client *twitter.Client, generator *llm.Client, sched *scheduler.Scheduler) *Handlers {
	return &Handlers{
		manager:   manager,
		client:    client,
		generator: generator,
		sched:     sched,
		startTime: time.Now(),
	}
}

// Index reports the service identity and version.
func (h *Handlers) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "postwing",
		"version": buildinfo.Version,
		"status":  "running",
	})
}

// Status reports authentication state, scheduler state, and uptime.
func (h *Handlers) Status(c *gin.Context) {
	running, times, lastRun := h.sched.Status()

	schedStatus := gin.H{"running": running, "tweet_times": times}
	if next := h.sched.NextRun(time.Now()); !next.IsZero() {
		schedStatus["next_run"] = next.Format(time.RFC3339)
	}

	resp := gin.H{
		"auth_state":     string(h.manager.State()),
		"authenticated":  h.manager.ValidateCredentials(),
		"scheduler":      schedStatus,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}
	if lastRun != nil {
		resp["last_run"] = lastRun
	}
	c.JSON(http.StatusOK, resp)
}

type postTweetRequest struct {
	Content string `json:"content"`
}

// PostTweet publishes a post immediately. An empty content field asks the
// content generator for a draft first.
func (h *Handlers) PostTweet(c *gin.Context) {
	var req postTweetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}

	record, err := h.sched.ManualPost(c.Request.Context(), req.Content)
	if err != nil {
		log.WithField("request_id", logging.RequestIDFromContext(c.Request.Context())).
			Errorf("manual post failed: %v", err)
		c.JSON(statusForError(err), gin.H{"error": err.Error(), "run_id": record.RunID})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":    record.RunID,
		"tweet_id":  record.TweetID,
		"tweet_url": record.TweetURL,
	})
}

type generateRequest struct {
	Count int `json:"count"`
}

// GenerateTweets drafts posts without publishing them.
func (h *Handlers) GenerateTweets(c *gin.Context) {
	req := generateRequest{Count: 1}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
			return
		}
	}
	if req.Count < 1 {
		req.Count = 1
	}
	if req.Count > maxGenerateCount {
		req.Count = maxGenerateCount
	}

	posts := h.generator.GenerateMultiple(c.Request.Context(), req.Count)
	if len(posts) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "content generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tweets": posts, "count": len(posts)})
}

// UserInfo reports the authenticated account profile.
func (h *Handlers) UserInfo(c *gin.Context) {
	info, err := h.client.GetMe(c.Request.Context())
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// RecentTweets lists the account's recent posts.
func (h *Handlers) RecentTweets(c *gin.Context) {
	count := 5
	if raw := c.Query("count"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			count = parsed
		}
	}
	if count > maxRecentCount {
		count = maxRecentCount
	}

	tweets, err := h.client.RecentTweets(c.Request.Context(), count)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tweets": tweets, "count": len(tweets)})
}

// statusForError maps domain failures onto HTTP statuses once, here.
func statusForError(err error) int {
	var apiErr *twitter.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Kind == twitter.ErrKindRateLimited {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case errors.Is(err, auth.ErrNotAuthenticated),
		errors.Is(err, auth.ErrIrrecoverable),
		errors.Is(err, auth.ErrRefreshFailed):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
