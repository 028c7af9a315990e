package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/postwing/postwing/internal/twitter"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("bad test time %q: %v", value, err)
	}
	return parsed
}

type fakeGenerator struct {
	calls atomic.Int32
	post  string
	err   error
}

func (f *fakeGenerator) GeneratePost(ctx context.Context, customPrompt string) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return f.post, nil
}

type fakePoster struct {
	calls atomic.Int32
	last  atomic.Value
	err   error
}

func (f *fakePoster) PostTweet(ctx context.Context, content string) (*twitter.Tweet, error) {
	f.calls.Add(1)
	f.last.Store(content)
	if f.err != nil {
		return nil, f.err
	}
	return &twitter.Tweet{ID: "1", Text: content, URL: "https://twitter.com/user/status/1"}, nil
}

func TestManualPostGeneratesWhenContentEmpty(t *testing.T) {
	generator := &fakeGenerator{post: "generated content"}
	poster := &fakePoster{}
	s := New(generator, poster, []string{"09:00"})

	record, err := s.ManualPost(context.Background(), "")
	if err != nil {
		t.Fatalf("ManualPost failed: %v", err)
	}
	if record.RunID == "" {
		t.Fatal("run record missing run ID")
	}
	if record.Trigger != "manual" {
		t.Fatalf("trigger = %q", record.Trigger)
	}
	if record.TweetID != "1" {
		t.Fatalf("tweet ID = %q", record.TweetID)
	}
	if generator.calls.Load() != 1 {
		t.Fatal("generator not consulted for empty content")
	}
	if got := poster.last.Load().(string); got != "generated content" {
		t.Fatalf("posted %q", got)
	}
}

func TestManualPostUsesProvidedContent(t *testing.T) {
	generator := &fakeGenerator{post: "generated content"}
	poster := &fakePoster{}
	s := New(generator, poster, nil)

	if _, err := s.ManualPost(context.Background(), "operator wrote this"); err != nil {
		t.Fatalf("ManualPost failed: %v", err)
	}
	if generator.calls.Load() != 0 {
		t.Fatal("generator consulted despite provided content")
	}
	if got := poster.last.Load().(string); got != "operator wrote this" {
		t.Fatalf("posted %q", got)
	}
}

func TestManualPostRecordsFailure(t *testing.T) {
	poster := &fakePoster{err: fmt.Errorf("rate limited")}
	s := New(&fakeGenerator{post: "p"}, poster, nil)

	record, err := s.ManualPost(context.Background(), "content")
	if err == nil {
		t.Fatal("expected posting error")
	}
	if record.Error == "" {
		t.Fatal("failure not recorded in the run record")
	}

	_, _, lastRun := s.Status()
	if lastRun == nil || lastRun.RunID != record.RunID {
		t.Fatal("failed run not visible in status")
	}
}

func TestStartStop(t *testing.T) {
	s := New(&fakeGenerator{post: "p"}, &fakePoster{}, []string{"09:00", "18:00"})

	s.Start()
	running, times, _ := s.Status()
	if !running {
		t.Fatal("scheduler not running after Start")
	}
	if len(times) != 2 {
		t.Fatalf("times = %v", times)
	}

	// Second Start is a no-op.
	s.Start()

	s.Stop()
	if running, _, _ := s.Status(); running {
		t.Fatal("scheduler still running after Stop")
	}

	// Second Stop is a no-op too.
	s.Stop()
}

func TestUpdateSchedule(t *testing.T) {
	s := New(&fakeGenerator{post: "p"}, &fakePoster{}, []string{"09:00"})
	s.UpdateSchedule([]string{"12:30", "07:15"})

	_, times, _ := s.Status()
	if len(times) != 2 || times[0] != "07:15" || times[1] != "12:30" {
		t.Fatalf("times = %v", times)
	}
}

func TestNormalizeTimes(t *testing.T) {
	got := normalizeTimes([]string{"18:00", "bogus", "09:00", "09:00", " 07:30 ", "25:00"})
	want := []string{"07:30", "09:00", "18:00"}
	if len(got) != len(want) {
		t.Fatalf("normalizeTimes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalizeTimes = %v, want %v", got, want)
		}
	}
}

func TestNextRun(t *testing.T) {
	s := New(&fakeGenerator{post: "p"}, &fakePoster{}, []string{"09:00", "18:00"})

	now := mustTime(t, "2026-08-28T10:00:00Z")
	next := s.NextRun(now)
	if next.Hour() != 18 || next.Day() != now.Day() {
		t.Fatalf("NextRun = %v, want 18:00 today", next)
	}

	// After the last slot, the first slot tomorrow is next.
	evening := mustTime(t, "2026-08-28T19:00:00Z")
	next = s.NextRun(evening)
	if next.Hour() != 9 || next.Day() != evening.Day()+1 {
		t.Fatalf("NextRun = %v, want 09:00 tomorrow", next)
	}

	empty := New(&fakeGenerator{}, &fakePoster{}, nil)
	if !empty.NextRun(now).IsZero() {
		t.Fatal("NextRun without configured times must be zero")
	}
}

func TestFireDueRunsOncePerDay(t *testing.T) {
	generator := &fakeGenerator{post: "p"}
	poster := &fakePoster{}
	s := New(generator, poster, []string{"09:00"})

	now := mustTime(t, "2026-08-28T09:00:10+00:00")
	s.fireDue(context.Background(), now)
	s.fireDue(context.Background(), now)

	if poster.calls.Load() != 1 {
		t.Fatalf("posting ran %d times for the same slot, want 1", poster.calls.Load())
	}

	// The same slot fires again the next day.
	s.fireDue(context.Background(), now.AddDate(0, 0, 1))
	if poster.calls.Load() != 2 {
		t.Fatalf("posting did not fire on the next day")
	}
}
