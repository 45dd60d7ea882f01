package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	cronlib "github.com/robfig/cron/v3"
)

var (
	// ErrDuplicateEntry is returned by Add for a name already registered.
	ErrDuplicateEntry = errors.New("jobqueue/cron: duplicate entry")
	// ErrInvalidSchedule wraps cron expression parse failures.
	ErrInvalidSchedule = errors.New("jobqueue/cron: invalid schedule")
	// ErrStarted is returned by Start on a running scheduler.
	ErrStarted = errors.New("jobqueue/cron: scheduler already started")
)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due entries.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithClock sets the clock used for ticks and schedule evaluation.
func WithClock(c clockwork.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l }
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// Scheduler enqueues registered entries when they come due.
type Scheduler struct {
	clock        clockwork.Clock
	logger       *slog.Logger
	tickInterval time.Duration

	mu      sync.Mutex
	entries map[string]*Entry

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		clock:        clockwork.NewRealClock(),
		logger:       slog.Default(),
		tickInterval: time.Second,
		entries:      make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a recurring enqueue of j with args. The first run is the
// schedule's next activation after now.
func (s *Scheduler) Add(name, expr string, j Enqueuer, args ...any) error {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, name)
	}
	s.entries[name] = &Entry{
		Name:      name,
		Schedule:  expr,
		JobName:   j.Name(),
		NextRunAt: sched.Next(s.clock.Now().UTC()),
		job:       j,
		args:      args,
		schedule:  sched,
	}
	return nil
}

// Remove unregisters an entry and reports whether it existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[name]
	delete(s.entries, name)
	return ok
}

// Entries returns a snapshot of all entries ordered by next run.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRunAt.Equal(out[j].NextRunAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].NextRunAt.Before(out[j].NextRunAt)
	})
	return out
}

// Start launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.tickLoop(context.WithoutCancel(ctx))
	s.logger.Info("cron scheduler started",
		slog.Int("entries", len(s.entries)),
		slog.Duration("tick_interval", s.tickInterval),
	)
	return nil
}

// Stop signals the tick loop to exit and waits for it.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick fires every entry due at the current time.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock.Now().UTC()

	s.mu.Lock()
	var due []*Entry
	for _, e := range s.entries {
		if !e.NextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].Name < due[j].Name })
	for _, e := range due {
		s.fire(ctx, e, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, e *Entry, now time.Time) {
	created, err := e.job.PerformAsync(ctx, e.args...)

	s.mu.Lock()
	// Missed activations collapse into one run.
	e.NextRunAt = e.schedule.Next(now)
	if err == nil {
		e.LastRunAt = &now
		e.LastEntryID = created.ID
	}
	next := e.NextRunAt
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("cron enqueue error",
			slog.String("cron_name", e.Name),
			slog.String("job_name", e.JobName),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("cron fired",
		slog.String("cron_name", e.Name),
		slog.String("job_name", e.JobName),
		slog.Int64("entry_id", created.ID),
		slog.Time("next_run_at", next),
	)
}
