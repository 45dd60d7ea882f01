package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue/entry"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// stubJob records PerformAsync calls.
type stubJob struct {
	mu    sync.Mutex
	calls [][]any
	fail  bool
}

func (j *stubJob) Name() string { return "stub" }

func (j *stubJob) PerformAsync(_ context.Context, args ...any) (*entry.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail {
		return nil, errors.New("store down")
	}
	j.calls = append(j.calls, args)
	return &entry.Entry{ID: int64(len(j.calls))}, nil
}

func (j *stubJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.calls)
}

func newTestScheduler(clock clockwork.Clock) *Scheduler {
	return NewScheduler(
		WithClock(clock),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestParseSchedule(t *testing.T) {
	for _, expr := range []string{"* * * * *", "0 9 * * 1-5", "@hourly", "@every 30s"} {
		if _, err := ParseSchedule(expr); err != nil {
			t.Errorf("ParseSchedule(%q): %v", expr, err)
		}
	}
	for _, expr := range []string{"", "every minute", "* * * * * *"} {
		if _, err := ParseSchedule(expr); !errors.Is(err, ErrInvalidSchedule) {
			t.Errorf("ParseSchedule(%q) err = %v, want ErrInvalidSchedule", expr, err)
		}
	}
}

func TestAddValidation(t *testing.T) {
	s := newTestScheduler(clockwork.NewFakeClockAt(epoch))
	j := &stubJob{}

	if err := s.Add("a", "@every 1m", j); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("a", "@every 1m", j); !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("err = %v, want ErrDuplicateEntry", err)
	}
	if err := s.Add("b", "nope", j); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("err = %v, want ErrInvalidSchedule", err)
	}

	entries := s.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if want := epoch.Add(time.Minute); !entries[0].NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", entries[0].NextRunAt, want)
	}
	if entries[0].JobName != "stub" {
		t.Errorf("JobName = %q, want stub", entries[0].JobName)
	}

	if !s.Remove("a") || s.Remove("a") {
		t.Error("Remove should report existence once")
	}
}

func TestTickFiresDueEntries(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := newTestScheduler(clock)
	minutely, hourly := &stubJob{}, &stubJob{}

	if err := s.Add("minutely", "@every 1m", minutely, "a", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("hourly", "@hourly", hourly); err != nil {
		t.Fatal(err)
	}

	s.tick(context.Background())
	if minutely.count() != 0 || hourly.count() != 0 {
		t.Fatal("nothing is due at registration time")
	}

	clock.Advance(time.Minute)
	s.tick(context.Background())
	if got := minutely.count(); got != 1 {
		t.Fatalf("minutely calls = %d, want 1", got)
	}
	if got := minutely.calls[0]; len(got) != 2 || got[0] != "a" || got[1] != 1 {
		t.Errorf("args = %v, want [a 1]", got)
	}
	if hourly.count() != 0 {
		t.Error("hourly fired early")
	}

	// Several missed activations collapse into one run.
	clock.Advance(time.Hour)
	s.tick(context.Background())
	if got := minutely.count(); got != 2 {
		t.Errorf("minutely calls = %d, want 2", got)
	}
	if got := hourly.count(); got != 1 {
		t.Errorf("hourly calls = %d, want 1", got)
	}

	for _, e := range s.Entries() {
		if e.LastRunAt == nil || !e.LastRunAt.Equal(clock.Now()) {
			t.Errorf("%s LastRunAt = %v, want %v", e.Name, e.LastRunAt, clock.Now())
		}
		if !e.NextRunAt.After(clock.Now()) {
			t.Errorf("%s NextRunAt = %v not after now", e.Name, e.NextRunAt)
		}
	}
}

func TestTickEnqueueFailureAdvancesSchedule(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := newTestScheduler(clock)
	j := &stubJob{fail: true}
	if err := s.Add("broken", "@every 1m", j); err != nil {
		t.Fatal(err)
	}

	clock.Advance(time.Minute)
	s.tick(context.Background())

	e := s.Entries()[0]
	if e.LastRunAt != nil {
		t.Errorf("LastRunAt = %v, want nil", e.LastRunAt)
	}
	if want := epoch.Add(2 * time.Minute); !e.NextRunAt.Equal(want) {
		t.Errorf("NextRunAt = %v, want %v", e.NextRunAt, want)
	}
}

func TestStartStop(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	s := newTestScheduler(clock)
	j := &stubJob{}
	if err := s.Add("every-second", "@every 1s", j); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrStarted) {
		t.Errorf("second Start err = %v, want ErrStarted", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}
	clock.Advance(time.Second)

	deadline := time.Now().Add(5 * time.Second)
	for j.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if j.count() == 0 {
		t.Fatal("entry never fired")
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
