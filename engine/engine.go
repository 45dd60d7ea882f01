package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/backoff"
	"github.com/xraph/jobqueue/delay"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/ext"
	"github.com/xraph/jobqueue/job"
	mw "github.com/xraph/jobqueue/middleware"
	"github.com/xraph/jobqueue/observability"
	"github.com/xraph/jobqueue/queue"
	"github.com/xraph/jobqueue/scheduler"
	"github.com/xraph/jobqueue/stats"
	"github.com/xraph/jobqueue/store"
)

const instrumentationName = "github.com/xraph/jobqueue"

// task is one attempt in flight. The scheduler hands the same task to
// run and to the success or error callback.
type task struct {
	entry   *entry.Entry
	started time.Time
}

// Engine persists, schedules and executes job entries.
type Engine struct {
	id         string
	cfg        jobqueue.Config
	store      store.Persister
	registry   *job.Registry
	extensions *ext.Registry
	bo         backoff.Strategy
	clock      clockwork.Clock
	logger     *slog.Logger
	chain      mw.Middleware
	limiter    *mw.LaneLimiter

	lanes   *queue.Weighted[*task]
	sched   *scheduler.Scheduler[*task]
	delayed *delay.Queue[*entry.Entry]

	// Collected by options, applied once the logger is known.
	mws         []mw.Middleware
	pendingExts []ext.Extension
	limits      []mw.LaneLimit

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	// mu orders enqueues against Start's recovery pass so no entry is
	// scheduled twice.
	mu      sync.RWMutex
	started bool
	stopped bool
}

// New creates an Engine backed by persister.
func New(persister store.Persister, opts ...Option) (*Engine, error) {
	if persister == nil {
		return nil, jobqueue.ErrNoPersister
	}

	eng := &Engine{
		id:       uuid.NewString(),
		cfg:      jobqueue.DefaultConfig(),
		store:    persister,
		registry: job.NewRegistry(),
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if err := eng.cfg.Validate(); err != nil {
		return nil, err
	}
	if eng.bo == nil {
		eng.bo = backoff.DefaultStrategy()
	}
	eng.logger = eng.logger.With(slog.String("engine_id", eng.id))

	eng.extensions = ext.NewRegistry(eng.logger)
	eng.extensions.Register(eng.observabilityExtension())
	for _, e := range eng.pendingExts {
		eng.extensions.Register(e)
	}
	eng.pendingExts = nil

	eng.limiter = mw.NewLaneLimiter(eng.limits...)
	eng.chain = eng.buildChain()

	lanes, err := queue.NewWeighted[*task](eng.cfg.Lanes, func(t *task) string { return t.entry.Lane })
	if err != nil {
		return nil, err
	}
	eng.lanes = lanes

	eng.sched, err = scheduler.New[*task](lanes, eng.run,
		scheduler.WithConcurrency[*task](eng.cfg.Concurrency),
		scheduler.WithDispatchDelay[*task](eng.cfg.DispatchDelay),
		scheduler.WithOnSuccess[*task](eng.onSuccess),
		scheduler.WithOnError[*task](eng.onError),
		scheduler.WithClock[*task](eng.clock),
		scheduler.WithLogger[*task](eng.logger),
	)
	if err != nil {
		return nil, err
	}

	eng.delayed = delay.New[*entry.Entry](eng.fire,
		delay.WithClock[*entry.Entry](eng.clock),
		delay.WithLogger[*entry.Entry](eng.logger),
	)

	return eng, nil
}

// observabilityExtension builds the lifecycle counters on the configured
// meter provider, or on the global one.
func (eng *Engine) observabilityExtension() *observability.MetricsExtension {
	if eng.meterProvider != nil {
		return observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"))
	}
	return observability.NewMetricsExtension()
}

// buildChain assembles the default stack:
// recover → tracing → metrics → logging → rate limit → timeout, followed
// by user middleware.
func (eng *Engine) buildChain() mw.Middleware {
	tracing := mw.Tracing()
	if eng.tracerProvider != nil {
		tracing = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if eng.meterProvider != nil {
		metrics = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	}

	all := []mw.Middleware{
		mw.Recover(eng.logger),
		tracing,
		metrics,
		mw.Logging(eng.logger),
		mw.RateLimit(eng.limiter),
		mw.Timeout(eng.logger, eng.timeoutFor),
	}
	all = append(all, eng.mws...)
	return mw.Chain(all...)
}

func (eng *Engine) timeoutFor(e *entry.Entry) time.Duration {
	def, ok := eng.registry.Get(e.Name)
	if !ok {
		return 0
	}
	return def.Opts.Timeout
}

// ID returns the engine's instance identifier.
func (eng *Engine) ID() string { return eng.id }

// Config returns the engine configuration.
func (eng *Engine) Config() jobqueue.Config { return eng.cfg }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Registry returns the job registry.
func (eng *Engine) Registry() *job.Registry { return eng.registry }

// Running returns the number of attempts in flight.
func (eng *Engine) Running() int { return eng.sched.Running() }

// Pending returns the number of due entries waiting for a slot.
func (eng *Engine) Pending() int { return eng.sched.Pending() }

// Scheduled returns the number of entries waiting for their run time.
func (eng *Engine) Scheduled() int { return eng.delayed.Len() }

// LaneSize returns the number of due entries waiting in lane.
func (eng *Engine) LaneSize(lane string) int {
	var n int
	eng.sched.Inspect(func(queue.Queue[*task]) {
		n = eng.lanes.LaneSize(lane)
	})
	return n
}

// Wait blocks until no attempt is running and no due entry is waiting,
// or ctx is done. Entries held for a future run time are not waited for.
func (eng *Engine) Wait(ctx context.Context) error {
	return eng.sched.Wait(ctx)
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Start recovers enqueued entries from the persister and begins
// dispatching. Jobs should be defined before Start so recovered entries
// find their performers.
func (eng *Engine) Start(ctx context.Context) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if eng.stopped {
		return jobqueue.ErrEngineStopped
	}
	if eng.started {
		return jobqueue.ErrEngineStarted
	}

	pending, err := eng.store.EnqueuedEntries(ctx)
	if err != nil {
		return fmt.Errorf("recover enqueued entries: %w", err)
	}

	eng.delayed.Start()
	eng.started = true

	for _, e := range pending {
		eng.scheduleLocked(e)
	}

	eng.logger.Info("engine started",
		slog.Int("concurrency", eng.cfg.Concurrency),
		slog.Int("lanes", len(eng.cfg.Lanes)),
		slog.Int("recovered", len(pending)),
		slog.Any("jobs", eng.registry.Names()),
	)
	return nil
}

// Stop stops dispatching, waits for in-flight attempts and notifies
// extensions. Entries not yet dispatched stay Enqueued in the persister
// and are recovered by the next Start. If ctx carries no deadline the
// configured shutdown timeout applies; once it expires in-flight handler
// contexts are cancelled.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	if eng.stopped {
		eng.mu.Unlock()
		return nil
	}
	eng.stopped = true
	eng.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	eng.delayed.Stop()
	err := eng.sched.Stop(ctx)

	eng.extensions.EmitShutdown(context.WithoutCancel(ctx))
	eng.logger.Info("engine stopped",
		slog.Int("undispatched", eng.sched.Pending()+eng.delayed.Len()),
	)
	if err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Registration
// ──────────────────────────────────────────────────

// Define is shorthand for eng.Define(def).
func Define(eng *Engine, def *job.Definition) (*Job, error) {
	return eng.Define(def)
}

// Define registers def and returns a handle for enqueuing it. A
// definition without a lane targets the default lane.
func (eng *Engine) Define(def *job.Definition) (*Job, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if def.Opts.Lane == "" {
		def = def.WithLane(eng.cfg.DefaultLane())
	}
	if !eng.hasLane(def.Opts.Lane) {
		return nil, &jobqueue.LaneError{Lane: def.Opts.Lane, Err: jobqueue.ErrUnknownLane}
	}
	if err := eng.registry.Register(def); err != nil {
		return nil, err
	}
	return &Job{eng: eng, def: def}, nil
}

func (eng *Engine) hasLane(name string) bool {
	for _, l := range eng.cfg.Lanes {
		if l.Name == name {
			return true
		}
	}
	return false
}

// ──────────────────────────────────────────────────
// Enqueue and scheduling
// ──────────────────────────────────────────────────

// enqueue persists a new entry for def and schedules it.
func (eng *Engine) enqueue(ctx context.Context, def *job.Definition, runAt time.Time, args []any) (*entry.Entry, error) {
	if !eng.hasLane(def.Opts.Lane) {
		return nil, &jobqueue.LaneError{Lane: def.Opts.Lane, Err: jobqueue.ErrUnknownLane}
	}
	encoded, err := entry.NewArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("job %q: %w", def.Name, err)
	}

	eng.mu.RLock()
	defer eng.mu.RUnlock()
	if eng.stopped {
		return nil, jobqueue.ErrEngineStopped
	}

	now := eng.now()
	if runAt.IsZero() {
		runAt = now
	}
	return eng.insertLocked(ctx, &entry.Draft{
		Name:    def.Name,
		Args:    encoded,
		Lane:    def.Opts.Lane,
		AddedAt: now,
		RunAt:   runAt.UTC().Truncate(time.Millisecond),
	})
}

// insertLocked persists d, notifies extensions and schedules the entry
// when the engine is running. Callers hold mu for reading.
func (eng *Engine) insertLocked(ctx context.Context, d *entry.Draft) (*entry.Entry, error) {
	e, err := eng.store.Insert(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("insert entry for job %q: %w", d.Name, err)
	}
	eng.extensions.EmitEntryEnqueued(ctx, e)
	if eng.started && !eng.stopped {
		eng.scheduleLocked(e.Clone())
	}
	return e, nil
}

// scheduleLocked hands e to the scheduler now or at its run time.
func (eng *Engine) scheduleLocked(e *entry.Entry) {
	if e.Due(eng.clock.Now()) {
		eng.dispatch(e)
		return
	}
	eng.delayed.Schedule(e.RunAt, e)
}

// fire is called by the delay queue when a scheduled entry is due.
func (eng *Engine) fire(e *entry.Entry) {
	eng.dispatch(e)
}

func (eng *Engine) dispatch(e *entry.Entry) {
	if err := eng.sched.Add(&task{entry: e}); err != nil {
		if errors.Is(err, jobqueue.ErrUnknownLane) {
			eng.bury(e, err)
			return
		}
		// The entry stays Enqueued and is recovered by the next Start.
		level := slog.LevelWarn
		if errors.Is(err, jobqueue.ErrSchedulerStopped) {
			level = slog.LevelDebug
		}
		eng.logger.Log(context.Background(), level, "entry not dispatched",
			slog.Int64("entry_id", e.ID),
			slog.String("lane", e.Lane),
			slog.String("error", err.Error()),
		)
	}
}

// bury dead-letters an entry that can never be dispatched, such as one
// persisted for a lane no longer configured.
func (eng *Engine) bury(e *entry.Entry, cause error) {
	ctx := context.Background()
	endedAt := eng.now()
	errText := entry.SerializeError(cause)

	if err := eng.store.SetDeadState(ctx, e.ID, endedAt, errText); err != nil {
		eng.logger.Error("failed to dead-letter undispatchable entry",
			slog.Int64("entry_id", e.ID),
			slog.String("lane", e.Lane),
			slog.String("error", err.Error()),
		)
		return
	}
	e.State = entry.StateDead
	e.EndedAt = &endedAt
	e.Error = errText

	eng.logger.Warn("entry dead: lane not configured",
		slog.Int64("entry_id", e.ID),
		slog.String("job_name", e.Name),
		slog.String("lane", e.Lane),
	)
	eng.extensions.EmitEntryDead(ctx, e, cause)
}

func (eng *Engine) now() time.Time {
	return eng.clock.Now().UTC().Truncate(time.Millisecond)
}

// Now returns the engine clock's current time at millisecond precision.
func (eng *Engine) Now() time.Time { return eng.now() }

// ──────────────────────────────────────────────────
// Execution
// ──────────────────────────────────────────────────

// run performs one attempt through the middleware chain.
func (eng *Engine) run(ctx context.Context, t *task) error {
	e := t.entry
	t.started = eng.clock.Now()
	eng.extensions.EmitEntryStarted(ctx, e)

	def, ok := eng.registry.Get(e.Name)
	if !ok {
		return fmt.Errorf("%w: %q", jobqueue.ErrUnknownJob, e.Name)
	}
	return eng.chain(ctx, e, func(ctx context.Context) error {
		return def.Performer.Perform(ctx, e.Args)
	})
}

// onSuccess records a successful attempt.
func (eng *Engine) onSuccess(ctx context.Context, t *task) error {
	ctx = context.WithoutCancel(ctx)
	e := t.entry
	endedAt := eng.now()

	if err := eng.store.SetProcessedState(ctx, e.ID, endedAt); err != nil {
		return fmt.Errorf("mark entry %d processed: %w", e.ID, err)
	}
	e.State = entry.StateProcessed
	e.EndedAt = &endedAt

	eng.extensions.EmitEntryProcessed(ctx, e, eng.clock.Since(t.started))
	return nil
}

// onError records a failed attempt and either schedules the next one or
// dead-letters the entry.
func (eng *Engine) onError(ctx context.Context, t *task, cause error) error {
	ctx = context.WithoutCancel(ctx)
	e := t.entry
	endedAt := eng.now()
	errText := entry.SerializeError(cause)

	ceiling := eng.cfg.DefaultMaxRetries
	if def, ok := eng.registry.Get(e.Name); ok {
		ceiling = def.RetryCeiling(ceiling)
	}

	e.EndedAt = &endedAt
	e.Error = errText

	if e.Retries >= ceiling {
		if err := eng.store.SetDeadState(ctx, e.ID, endedAt, errText); err != nil {
			return fmt.Errorf("mark entry %d dead: %w", e.ID, err)
		}
		e.State = entry.StateDead

		eng.logger.Warn("entry dead after exhausting retries",
			slog.Int64("entry_id", e.ID),
			slog.String("job_name", e.Name),
			slog.Int("retries", e.Retries),
			slog.String("error", cause.Error()),
		)
		eng.extensions.EmitEntryDead(ctx, e, cause)
		return nil
	}

	if err := eng.store.SetFailedState(ctx, e.ID, endedAt, errText); err != nil {
		return fmt.Errorf("mark entry %d failed: %w", e.ID, err)
	}
	e.State = entry.StateFailed

	wait := eng.bo.Delay(e.Retries)
	nextRunAt := endedAt.Add(wait).Truncate(time.Millisecond)

	eng.mu.RLock()
	_, err := eng.insertLocked(ctx, &entry.Draft{
		Name:    e.Name,
		Args:    e.Args,
		Lane:    e.Lane,
		AddedAt: endedAt,
		RunAt:   nextRunAt,
		Retries: e.Retries + 1,
	})
	eng.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("schedule retry of entry %d: %w", e.ID, err)
	}

	eng.logger.Info("entry scheduled for retry",
		slog.Int64("entry_id", e.ID),
		slog.String("job_name", e.Name),
		slog.Int("retries", e.Retries+1),
		slog.Int("max_retries", ceiling),
		slog.Duration("delay", wait),
	)
	eng.extensions.EmitEntryFailed(ctx, e, cause, nextRunAt)
	return nil
}

// ──────────────────────────────────────────────────
// Manual retry
// ──────────────────────────────────────────────────

// RetryAsync re-runs a finished entry as soon as possible.
func (eng *Engine) RetryAsync(ctx context.Context, id int64) (*entry.Entry, error) {
	return eng.RetryAt(ctx, id, time.Time{})
}

// RetryIn re-runs a finished entry after d.
func (eng *Engine) RetryIn(ctx context.Context, id int64, d time.Duration) (*entry.Entry, error) {
	return eng.RetryAt(ctx, id, eng.clock.Now().Add(d))
}

// RetryAt marks the entry Retried and enqueues a fresh attempt with zero
// retries at at. A zero at means now. Entries still Enqueued, or already
// Retried, cannot be retried. The store performs the transition
// conditionally, so concurrent retries of one entry yield one replacement.
func (eng *Engine) RetryAt(ctx context.Context, id int64, at time.Time) (*entry.Entry, error) {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	if eng.stopped {
		return nil, jobqueue.ErrEngineStopped
	}

	original, err := eng.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !original.State.Retryable() {
		return nil, fmt.Errorf("%w: entry %d is %s", jobqueue.ErrEntryNotRetryable, id, original.State)
	}

	if err := eng.store.SetRetriedState(ctx, id); err != nil {
		return nil, fmt.Errorf("mark entry %d retried: %w", id, err)
	}
	original.State = entry.StateRetried

	now := eng.now()
	if at.IsZero() {
		at = now
	}
	replacement, err := eng.insertLocked(ctx, &entry.Draft{
		Name:    original.Name,
		Args:    original.Args,
		Lane:    original.Lane,
		AddedAt: now,
		RunAt:   at.UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return nil, err
	}

	eng.logger.Info("entry retried",
		slog.Int64("entry_id", id),
		slog.Int64("replacement_id", replacement.ID),
		slog.String("job_name", original.Name),
	)
	eng.extensions.EmitEntryRetried(ctx, original, replacement)
	return replacement, nil
}

// ──────────────────────────────────────────────────
// Read surface
// ──────────────────────────────────────────────────

// Entry returns the entry with the given id.
func (eng *Engine) Entry(ctx context.Context, id int64) (*entry.Entry, error) {
	return eng.store.Get(ctx, id)
}

// Counts returns the number of enqueued, failed and dead entries.
func (eng *Engine) Counts(ctx context.Context) (entry.Counts, error) {
	return eng.store.Counts(ctx)
}

// EnqueuedEntries returns enqueued entries, oldest first.
func (eng *Engine) EnqueuedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return eng.store.EnqueuedEntries(ctx)
}

// FailedEntries returns failed entries, newest first.
func (eng *Engine) FailedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return eng.store.FailedEntries(ctx)
}

// DeadEntries returns dead entries, oldest first.
func (eng *Engine) DeadEntries(ctx context.Context) ([]*entry.Entry, error) {
	return eng.store.DeadEntries(ctx)
}

// Stats buckets state changes between start and end.
func (eng *Engine) Stats(ctx context.Context, start, end time.Time, g stats.Granularity) (*stats.Series, error) {
	if _, err := g.BucketSize(); err != nil {
		return nil, err
	}
	return eng.store.Stats(ctx, start, end, g)
}
