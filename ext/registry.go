package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/entry"
)

// Named hook types pair a hook implementation with the extension name
// captured at registration time.
type entryEnqueuedHook struct {
	name string
	hook EntryEnqueued
}

type entryStartedHook struct {
	name string
	hook EntryStarted
}

type entryProcessedHook struct {
	name string
	hook EntryProcessed
}

type entryFailedHook struct {
	name string
	hook EntryFailed
}

type entryDeadHook struct {
	name string
	hook EntryDead
}

type entryRetriedHook struct {
	name string
	hook EntryRetried
}

type shutdownHook struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. Extensions are type-cached at registration so emit calls
// iterate only over implementors of the relevant hook.
//
// Register all extensions before the engine starts; Register is not safe
// to call concurrently with the Emit methods.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	entryEnqueued  []entryEnqueuedHook
	entryStarted   []entryStartedHook
	entryProcessed []entryProcessedHook
	entryFailed    []entryFailedHook
	entryDead      []entryDeadHook
	entryRetried   []entryRetriedHook
	shutdown       []shutdownHook
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(EntryEnqueued); ok {
		r.entryEnqueued = append(r.entryEnqueued, entryEnqueuedHook{name, h})
	}
	if h, ok := e.(EntryStarted); ok {
		r.entryStarted = append(r.entryStarted, entryStartedHook{name, h})
	}
	if h, ok := e.(EntryProcessed); ok {
		r.entryProcessed = append(r.entryProcessed, entryProcessedHook{name, h})
	}
	if h, ok := e.(EntryFailed); ok {
		r.entryFailed = append(r.entryFailed, entryFailedHook{name, h})
	}
	if h, ok := e.(EntryDead); ok {
		r.entryDead = append(r.entryDead, entryDeadHook{name, h})
	}
	if h, ok := e.(EntryRetried); ok {
		r.entryRetried = append(r.entryRetried, entryRetriedHook{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownHook{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Entry event emitters
// ──────────────────────────────────────────────────

// EmitEntryEnqueued notifies all extensions that implement EntryEnqueued.
func (r *Registry) EmitEntryEnqueued(ctx context.Context, e *entry.Entry) {
	for _, h := range r.entryEnqueued {
		if err := h.hook.OnEntryEnqueued(ctx, e); err != nil {
			r.logHookError("OnEntryEnqueued", h.name, err)
		}
	}
}

// EmitEntryStarted notifies all extensions that implement EntryStarted.
func (r *Registry) EmitEntryStarted(ctx context.Context, e *entry.Entry) {
	for _, h := range r.entryStarted {
		if err := h.hook.OnEntryStarted(ctx, e); err != nil {
			r.logHookError("OnEntryStarted", h.name, err)
		}
	}
}

// EmitEntryProcessed notifies all extensions that implement EntryProcessed.
func (r *Registry) EmitEntryProcessed(ctx context.Context, e *entry.Entry, elapsed time.Duration) {
	for _, h := range r.entryProcessed {
		if err := h.hook.OnEntryProcessed(ctx, e, elapsed); err != nil {
			r.logHookError("OnEntryProcessed", h.name, err)
		}
	}
}

// EmitEntryFailed notifies all extensions that implement EntryFailed.
func (r *Registry) EmitEntryFailed(ctx context.Context, e *entry.Entry, entryErr error, nextRunAt time.Time) {
	for _, h := range r.entryFailed {
		if err := h.hook.OnEntryFailed(ctx, e, entryErr, nextRunAt); err != nil {
			r.logHookError("OnEntryFailed", h.name, err)
		}
	}
}

// EmitEntryDead notifies all extensions that implement EntryDead.
func (r *Registry) EmitEntryDead(ctx context.Context, e *entry.Entry, entryErr error) {
	for _, h := range r.entryDead {
		if err := h.hook.OnEntryDead(ctx, e, entryErr); err != nil {
			r.logHookError("OnEntryDead", h.name, err)
		}
	}
}

// EmitEntryRetried notifies all extensions that implement EntryRetried.
func (r *Registry) EmitEntryRetried(ctx context.Context, original, replacement *entry.Entry) {
	for _, h := range r.entryRetried {
		if err := h.hook.OnEntryRetried(ctx, original, replacement); err != nil {
			r.logHookError("OnEntryRetried", h.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, h := range r.shutdown {
		if err := h.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", h.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated to the engine.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
