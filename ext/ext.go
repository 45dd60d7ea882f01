package ext

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/entry"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Entry lifecycle hooks
// ──────────────────────────────────────────────────

// EntryEnqueued is called after an entry is persisted.
type EntryEnqueued interface {
	OnEntryEnqueued(ctx context.Context, e *entry.Entry) error
}

// EntryStarted is called when a worker begins an attempt.
type EntryStarted interface {
	OnEntryStarted(ctx context.Context, e *entry.Entry) error
}

// EntryProcessed is called after an attempt succeeds.
type EntryProcessed interface {
	OnEntryProcessed(ctx context.Context, e *entry.Entry, elapsed time.Duration) error
}

// EntryFailed is called when an attempt fails and a successor entry has
// been scheduled for nextRunAt.
type EntryFailed interface {
	OnEntryFailed(ctx context.Context, e *entry.Entry, err error, nextRunAt time.Time) error
}

// EntryDead is called when an attempt fails with no retries remaining.
type EntryDead interface {
	OnEntryDead(ctx context.Context, e *entry.Entry, err error) error
}

// EntryRetried is called after a manual retry replaced original with
// replacement.
type EntryRetried interface {
	OnEntryRetried(ctx context.Context, original, replacement *entry.Entry) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
