// Package scheduler runs the automatic posting loop. Each configured
// wall-clock time (HH:MM, local zone) triggers one generate-and-post run
// per day.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/postwing/postwing/internal/twitter"
	log "github.com/sirupsen/logrus"
)

// ContentGenerator drafts post content. The LLM client implements it.
type ContentGenerator interface {
	GeneratePost(ctx context.Context, customPrompt string) (string, error)
}

// Poster publishes posts. The API client implements it.
type Poster interface {
	PostTweet(ctx context.Context, content string) (*twitter.Tweet, error)
}

// checkInterval is how often the loop compares the clock against the
// configured posting times.
const checkInterval = 30 * time.Second

// RunRecord describes one posting attempt, manual or scheduled.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
	TweetID   string    `json:"tweet_id,omitempty"`
	TweetURL  string    `json:"tweet_url,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Scheduler posts generated content at the configured daily times.
type Scheduler struct {
	generator ContentGenerator
	poster    Poster

	mu        sync.Mutex
	times     []string
	lastFired map[string]string // HH:MM -> date last fired (2006-01-02)
	lastRun   *RunRecord
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a scheduler over the given content generator and API client.
func New(generator ContentGenerator, poster Poster, tweetTimes []string) *Scheduler {
	return &Scheduler{
		generator: generator,
		poster:    poster,
		times:     normalizeTimes(tweetTimes),
		lastFired: make(map[string]string),
	}
}

// Start launches the posting loop. It is a no-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx)
	log.Infof("scheduler started, posting times: %s", strings.Join(s.times, ", "))
}

// Stop halts the posting loop and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	log.Info("scheduler stopped")
}

// UpdateSchedule replaces the posting times, used by config hot reload.
func (s *Scheduler) UpdateSchedule(tweetTimes []string) {
	times := normalizeTimes(tweetTimes)
	s.mu.Lock()
	s.times = times
	s.mu.Unlock()
	log.Infof("scheduler times updated: %s", strings.Join(times, ", "))
}

// Status reports the loop state, configured times, and the last run.
func (s *Scheduler) Status() (running bool, times []string, lastRun *RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	times = append([]string(nil), s.times...)
	if s.lastRun != nil {
		record := *s.lastRun
		lastRun = &record
	}
	return s.running, times, lastRun
}

// NextRun returns the next scheduled posting time after now, or the zero
// time when no times are configured.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	s.mu.Lock()
	times := append([]string(nil), s.times...)
	s.mu.Unlock()

	if len(times) == 0 {
		return time.Time{}
	}
	for _, t := range times {
		parsed, err := time.Parse("15:04", t)
		if err != nil {
			continue
		}
		candidate := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
		if candidate.After(now) {
			return candidate
		}
	}
	// All of today's slots have passed; the first slot tomorrow is next.
	parsed, err := time.Parse("15:04", times[0])
	if err != nil {
		return time.Time{}
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
}

// ManualPost runs one generate-and-post cycle outside the schedule. When
// content is empty a post is generated first.
func (s *Scheduler) ManualPost(ctx context.Context, content string) (*RunRecord, error) {
	return s.runOnce(ctx, "manual", content)
}

// loop wakes up periodically and fires each configured time once per day.
func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

// fireDue runs a posting cycle for every configured time matching the
// current minute that has not fired today.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	current := now.Format("15:04")
	today := now.Format("2006-01-02")

	s.mu.Lock()
	var due []string
	for _, t := range s.times {
		if t == current && s.lastFired[t] != today {
			s.lastFired[t] = today
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		log.Infof("scheduled posting time %s reached", t)
		if _, err := s.runOnce(ctx, "scheduled", ""); err != nil {
			log.Errorf("scheduled post at %s failed: %v", t, err)
		}
	}
}

// runOnce executes one posting cycle and records its outcome.
func (s *Scheduler) runOnce(ctx context.Context, trigger, content string) (*RunRecord, error) {
	record := &RunRecord{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: time.Now(),
	}
	runLog := log.WithField("run_id", record.RunID)

	if content == "" {
		generated, err := s.generator.GeneratePost(ctx, "")
		if err != nil {
			record.Error = err.Error()
			s.record(record)
			return record, fmt.Errorf("content generation failed: %w", err)
		}
		content = generated
	}

	tweet, err := s.poster.PostTweet(ctx, content)
	if err != nil {
		record.Error = err.Error()
		s.record(record)
		return record, err
	}

	record.TweetID = tweet.ID
	record.TweetURL = tweet.URL
	s.record(record)
	runLog.Infof("posting run complete: %s", tweet.URL)
	return record, nil
}

func (s *Scheduler) record(record *RunRecord) {
	s.mu.Lock()
	s.lastRun = record
	s.mu.Unlock()
}

// normalizeTimes validates, dedupes, and sorts HH:MM entries, dropping the
// malformed ones with a warning.
func normalizeTimes(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, raw := range in {
		t := strings.TrimSpace(raw)
		if _, err := time.Parse("15:04", t); err != nil {
			log.Warnf("ignoring malformed posting time %q", raw)
			continue
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
