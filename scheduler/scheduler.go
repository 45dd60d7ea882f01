package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/queue"
)

// RunFunc executes one item.
type RunFunc[T any] func(ctx context.Context, item T) error

// SuccessFunc is called after RunFunc returns nil.
type SuccessFunc[T any] func(ctx context.Context, item T) error

// ErrorFunc is called with the error returned by RunFunc or SuccessFunc.
type ErrorFunc[T any] func(ctx context.Context, item T, err error) error

// Scheduler executes queued items with a concurrency ceiling.
type Scheduler[T any] struct {
	queue       queue.Queue[T]
	run         RunFunc[T]
	onSuccess   SuccessFunc[T]
	onError     ErrorFunc[T]
	concurrency int
	delay       time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running int
	stopped bool
	changed chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option[T any] func(*Scheduler[T])

// WithConcurrency sets the maximum number of concurrent runs.
func WithConcurrency[T any](n int) Option[T] {
	return func(s *Scheduler[T]) { s.concurrency = n }
}

// WithOnSuccess sets the callback invoked after a successful run.
func WithOnSuccess[T any](fn SuccessFunc[T]) Option[T] {
	return func(s *Scheduler[T]) { s.onSuccess = fn }
}

// WithOnError sets the callback invoked after a failed run.
func WithOnError[T any](fn ErrorFunc[T]) Option[T] {
	return func(s *Scheduler[T]) { s.onError = fn }
}

// WithDispatchDelay postpones every dispatch attempt by d.
func WithDispatchDelay[T any](d time.Duration) Option[T] {
	return func(s *Scheduler[T]) { s.delay = d }
}

// WithClock sets the clock used for dispatch delays.
func WithClock[T any](c clockwork.Clock) Option[T] {
	return func(s *Scheduler[T]) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(s *Scheduler[T]) { s.logger = l }
}

// New creates a scheduler over q that executes items with run.
func New[T any](q queue.Queue[T], run RunFunc[T], opts ...Option[T]) (*Scheduler[T], error) {
	s := &Scheduler[T]{
		queue:       q,
		run:         run,
		concurrency: 1,
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		changed:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		return nil, jobqueue.ErrInvalidConcurrency
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Add buffers item and triggers a dispatch attempt. Errors from the
// underlying queue are returned and the item is not buffered.
func (s *Scheduler[T]) Add(item T) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return jobqueue.ErrSchedulerStopped
	}
	if err := s.queue.Enqueue(item); err != nil {
		s.mu.Unlock()
		return err
	}
	s.broadcastLocked()
	s.mu.Unlock()

	s.trigger()
	return nil
}

// Running returns the number of items currently executing.
func (s *Scheduler[T]) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Pending returns the number of buffered items.
func (s *Scheduler[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Size()
}

// Inspect calls fn with the queue while holding the scheduler lock. fn
// must not call back into the scheduler.
func (s *Scheduler[T]) Inspect(fn func(q queue.Queue[T])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.queue)
}

// Wait blocks until nothing is running and nothing is buffered, or ctx
// is done.
func (s *Scheduler[T]) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.running == 0 && (s.queue.Size() == 0 || s.stopped) {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop stops dispatching and waits for running items. Buffered items are
// left in the queue. If ctx is done first, the contexts passed to running
// items are cancelled and Stop waits for them to return.
func (s *Scheduler[T]) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.broadcastLocked()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out, cancelling running items",
			slog.Int("running", s.Running()),
		)
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// trigger makes one dispatch attempt, after the configured delay if any.
func (s *Scheduler[T]) trigger() {
	if s.delay > 0 {
		s.clock.AfterFunc(s.delay, s.dispatch)
		return
	}
	s.dispatch()
}

func (s *Scheduler[T]) dispatch() {
	item, ok := s.acquire()
	if !ok {
		return
	}
	go s.work(item)
}

// acquire dequeues one item and takes a slot, atomically with the
// ceiling check.
func (s *Scheduler[T]) acquire() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.stopped || s.running >= s.concurrency || s.queue.Size() == 0 {
		return zero, false
	}
	item, ok := s.queue.Dequeue()
	if !ok {
		return zero, false
	}
	s.running++
	s.wg.Add(1)
	return item, true
}

func (s *Scheduler[T]) release() {
	s.mu.Lock()
	s.running--
	s.broadcastLocked()
	s.mu.Unlock()
	s.wg.Done()
}

// work runs item and then keeps pulling items while slots allow.
func (s *Scheduler[T]) work(item T) {
	for {
		s.execute(item)
		s.release()

		if s.delay > 0 {
			s.trigger()
			return
		}
		next, ok := s.acquire()
		if !ok {
			return
		}
		item = next
	}
}

func (s *Scheduler[T]) execute(item T) {
	err := s.safeRun(item)
	if err == nil && s.onSuccess != nil {
		err = s.guard("onSuccess", func() error { return s.onSuccess(s.ctx, item) })
	}
	if err == nil {
		return
	}
	if s.onError == nil {
		s.logger.Warn("scheduled item failed", slog.String("error", err.Error()))
		return
	}
	if cbErr := s.guard("onError", func() error { return s.onError(s.ctx, item, err) }); cbErr != nil {
		s.logger.Error("error callback failed",
			slog.String("error", cbErr.Error()),
			slog.String("cause", err.Error()),
		)
	}
}

func (s *Scheduler[T]) safeRun(item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: run panicked: %v", r)
		}
	}()
	return s.run(s.ctx, item)
}

func (s *Scheduler[T]) guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: %s panicked: %v", name, r)
		}
	}()
	return fn()
}

func (s *Scheduler[T]) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
