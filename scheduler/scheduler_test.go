package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/queue"
	"github.com/xraph/jobqueue/scheduler"
)

type task struct {
	id   int
	lane string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newQueue(t *testing.T) *queue.Weighted[task] {
	t.Helper()
	q, err := queue.NewWeighted([]jobqueue.Lane{{Name: "default", Weight: 1}},
		func(tk task) string { return tk.lane })
	if err != nil {
		t.Fatalf("NewWeighted: %v", err)
	}
	return q
}

// recorder collects ordered lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// gate lets a test hold each run until released.
type gate struct {
	started chan int
	release map[int]chan struct{}
}

func newGate(ids ...int) *gate {
	g := &gate{started: make(chan int, len(ids)), release: make(map[int]chan struct{})}
	for _, id := range ids {
		g.release[id] = make(chan struct{})
	}
	return g
}

func (g *gate) run(ctx context.Context, tk task) error {
	g.started <- tk.id
	select {
	case <-g.release[tk.id]:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func expectStarted(t *testing.T, g *gate, want int) {
	t.Helper()
	select {
	case got := <-g.started:
		if got != want {
			t.Fatalf("started %d, want %d", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %d to start", want)
	}
}

func expectStartedAny(t *testing.T, g *gate) int {
	t.Helper()
	select {
	case got := <-g.started:
		return got
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a start")
		return 0
	}
}

func expectNoStart(t *testing.T, g *gate) {
	t.Helper()
	select {
	case got := <-g.started:
		t.Fatalf("unexpected start of %d", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func wait(t *testing.T, s *scheduler.Scheduler[task]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Concurrency ceiling
// ──────────────────────────────────────────────────

func TestScheduler_ConcurrencyOneRunsSequentially(t *testing.T) {
	g := newGate(1, 2)
	rec := &recorder{}

	s, err := scheduler.New(newQueue(t),
		func(ctx context.Context, tk task) error {
			rec.add("run:%d", tk.id)
			return g.run(ctx, tk)
		},
		scheduler.WithConcurrency[task](1),
		scheduler.WithOnSuccess(func(_ context.Context, tk task) error {
			rec.add("success:%d", tk.id)
			return nil
		}),
		scheduler.WithLogger[task](quietLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_ = s.Add(task{id: 1, lane: "default"})
	_ = s.Add(task{id: 2, lane: "default"})

	expectStarted(t, g, 1)
	expectNoStart(t, g)
	if s.Running() != 1 || s.Pending() != 1 {
		t.Fatalf("Running/Pending = %d/%d, want 1/1", s.Running(), s.Pending())
	}

	close(g.release[1])
	expectStarted(t, g, 2)
	close(g.release[2])
	wait(t, s)

	want := []string{"run:1", "success:1", "run:2", "success:2"}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestScheduler_ConcurrencyTwoOfThree(t *testing.T) {
	g := newGate(1, 2, 3)
	var active, peak atomic.Int32

	s, err := scheduler.New(newQueue(t),
		func(ctx context.Context, tk task) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			defer active.Add(-1)
			return g.run(ctx, tk)
		},
		scheduler.WithConcurrency[task](2),
		scheduler.WithLogger[task](quietLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for id := 1; id <= 3; id++ {
		_ = s.Add(task{id: id, lane: "default"})
	}

	first := expectStartedAny(t, g)
	second := expectStartedAny(t, g)
	if first+second != 3 {
		t.Fatalf("started %d and %d, want 1 and 2", first, second)
	}
	expectNoStart(t, g)

	close(g.release[2])
	expectStarted(t, g, 3)
	close(g.release[1])
	close(g.release[3])
	wait(t, s)

	if p := peak.Load(); p != 2 {
		t.Errorf("peak concurrency = %d, want 2", p)
	}
}

func TestScheduler_NeverExceedsCeiling(t *testing.T) {
	const ceiling = 4
	var active, peak atomic.Int32
	var done atomic.Int32

	s, err := scheduler.New(newQueue(t),
		func(_ context.Context, _ task) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			done.Add(1)
			return nil
		},
		scheduler.WithConcurrency[task](ceiling),
		scheduler.WithLogger[task](quietLogger()),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(task{id: i, lane: "default"})
		}()
	}
	wg.Wait()
	wait(t, s)

	if done.Load() != 200 {
		t.Errorf("completed %d, want 200", done.Load())
	}
	if p := peak.Load(); p > ceiling {
		t.Errorf("peak concurrency = %d, exceeds %d", p, ceiling)
	}
}

// ──────────────────────────────────────────────────
// Error callbacks
// ──────────────────────────────────────────────────

func TestScheduler_OnErrorReceivesExactError(t *testing.T) {
	boom := errors.New("boom")
	got := make(chan error, 1)

	s, _ := scheduler.New(newQueue(t),
		func(context.Context, task) error { return boom },
		scheduler.WithOnError(func(_ context.Context, _ task, err error) error {
			got <- err
			return nil
		}),
		scheduler.WithLogger[task](quietLogger()),
	)
	_ = s.Add(task{id: 1, lane: "default"})

	select {
	case err := <-got:
		if err != boom { //nolint:errorlint // identity is the point
			t.Errorf("onError got %v, want the exact run error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onError not called")
	}
}

func TestScheduler_OnErrorFailureDoesNotStopPump(t *testing.T) {
	tests := []struct {
		name    string
		onError scheduler.ErrorFunc[task]
	}{
		{"returns error", func(context.Context, task, error) error { return errors.New("callback failed") }},
		{"panics", func(context.Context, task, error) error { panic("callback panicked") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ran atomic.Int32
			s, _ := scheduler.New(newQueue(t),
				func(_ context.Context, tk task) error {
					ran.Add(1)
					if tk.id == 1 {
						return errors.New("first fails")
					}
					return nil
				},
				scheduler.WithConcurrency[task](1),
				scheduler.WithOnError(tt.onError),
				scheduler.WithLogger[task](quietLogger()),
			)
			_ = s.Add(task{id: 1, lane: "default"})
			_ = s.Add(task{id: 2, lane: "default"})
			wait(t, s)

			if ran.Load() != 2 {
				t.Errorf("ran %d items, want 2", ran.Load())
			}
		})
	}
}

func TestScheduler_OnSuccessFailureRoutesToOnError(t *testing.T) {
	succErr := errors.New("persist failed")
	got := make(chan error, 1)

	s, _ := scheduler.New(newQueue(t),
		func(context.Context, task) error { return nil },
		scheduler.WithOnSuccess(func(context.Context, task) error { return succErr }),
		scheduler.WithOnError(func(_ context.Context, _ task, err error) error {
			got <- err
			return nil
		}),
		scheduler.WithLogger[task](quietLogger()),
	)
	_ = s.Add(task{id: 1, lane: "default"})

	select {
	case err := <-got:
		if !errors.Is(err, succErr) {
			t.Errorf("onError got %v, want %v", err, succErr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onError not called")
	}
}

func TestScheduler_RunPanicBecomesError(t *testing.T) {
	got := make(chan error, 1)
	s, _ := scheduler.New(newQueue(t),
		func(context.Context, task) error { panic("kaboom") },
		scheduler.WithOnError(func(_ context.Context, _ task, err error) error {
			got <- err
			return nil
		}),
		scheduler.WithLogger[task](quietLogger()),
	)
	_ = s.Add(task{id: 1, lane: "default"})

	select {
	case err := <-got:
		if err == nil {
			t.Fatal("expected error from panic")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onError not called")
	}
}

// ──────────────────────────────────────────────────
// Add / delay / stop
// ──────────────────────────────────────────────────

func TestScheduler_AddUnknownLane(t *testing.T) {
	s, _ := scheduler.New(newQueue(t),
		func(context.Context, task) error { return nil },
		scheduler.WithLogger[task](quietLogger()),
	)
	err := s.Add(task{id: 1, lane: "nope"})
	if !errors.Is(err, jobqueue.ErrUnknownLane) {
		t.Fatalf("Add = %v, want ErrUnknownLane", err)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
}

func TestScheduler_InvalidConcurrency(t *testing.T) {
	_, err := scheduler.New(newQueue(t),
		func(context.Context, task) error { return nil },
		scheduler.WithConcurrency[task](0),
	)
	if !errors.Is(err, jobqueue.ErrInvalidConcurrency) {
		t.Fatalf("New = %v, want ErrInvalidConcurrency", err)
	}
}

func TestScheduler_DispatchDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ran := make(chan int, 1)

	s, _ := scheduler.New(newQueue(t),
		func(_ context.Context, tk task) error {
			ran <- tk.id
			return nil
		},
		scheduler.WithDispatchDelay[task](time.Second),
		scheduler.WithClock[task](clock),
		scheduler.WithLogger[task](quietLogger()),
	)
	_ = s.Add(task{id: 7, lane: "default"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("BlockUntilContext: %v", err)
	}

	select {
	case <-ran:
		t.Fatal("ran before dispatch delay elapsed")
	default:
	}

	clock.Advance(time.Second)
	select {
	case id := <-ran:
		if id != 7 {
			t.Errorf("ran %d, want 7", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("item not dispatched after delay")
	}
}

func TestScheduler_StopCancelsRunningOnTimeout(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})

	s, _ := scheduler.New(newQueue(t),
		func(ctx context.Context, _ task) error {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
		scheduler.WithLogger[task](quietLogger()),
	)
	_ = s.Add(task{id: 1, lane: "default"})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop = %v, want DeadlineExceeded", err)
	}

	select {
	case <-cancelled:
	default:
		t.Fatal("running item was not cancelled")
	}

	if err := s.Add(task{id: 2, lane: "default"}); !errors.Is(err, jobqueue.ErrSchedulerStopped) {
		t.Errorf("Add after Stop = %v, want ErrSchedulerStopped", err)
	}
}

func TestScheduler_StopLeavesBufferedItems(t *testing.T) {
	g := newGate(1, 2)
	s, _ := scheduler.New(newQueue(t), g.run, scheduler.WithLogger[task](quietLogger()))

	_ = s.Add(task{id: 1, lane: "default"})
	_ = s.Add(task{id: 2, lane: "default"})
	expectStarted(t, g, 1)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(g.release[1])
	}()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	expectNoStart(t, g)
	if s.Pending() != 1 {
		t.Errorf("Pending = %d, want 1", s.Pending())
	}
}
