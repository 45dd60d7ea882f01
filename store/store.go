package store

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
)

// Persister is the durable-state contract the engine depends on. Every
// state transition records a state change for the stats aggregator.
type Persister interface {
	// Get returns the entry with the given id, or an error wrapping
	// jobqueue.ErrEntryNotFound.
	Get(ctx context.Context, id int64) (*entry.Entry, error)

	// Insert assigns a monotonically increasing id, stores the entry in
	// the Enqueued state and records the transition.
	Insert(ctx context.Context, d *entry.Draft) (*entry.Entry, error)

	// SetProcessedState marks the entry Processed.
	SetProcessedState(ctx context.Context, id int64, endedAt time.Time) error

	// SetFailedState marks the entry Failed with a serialized error.
	SetFailedState(ctx context.Context, id int64, endedAt time.Time, errText string) error

	// SetDeadState marks the entry Dead with a serialized error.
	SetDeadState(ctx context.Context, id int64, endedAt time.Time, errText string) error

	// SetRetriedState marks the entry Retried.
	SetRetriedState(ctx context.Context, id int64) error

	// Counts returns the number of enqueued, failed and dead entries.
	Counts(ctx context.Context) (entry.Counts, error)

	// EnqueuedEntries returns enqueued entries, oldest first.
	EnqueuedEntries(ctx context.Context) ([]*entry.Entry, error)

	// FailedEntries returns failed entries, newest first.
	FailedEntries(ctx context.Context) ([]*entry.Entry, error)

	// DeadEntries returns dead entries, oldest first.
	DeadEntries(ctx context.Context) ([]*entry.Entry, error)

	// Stats buckets state changes in [start, end] by granularity.
	Stats(ctx context.Context, start, end time.Time, g stats.Granularity) (*stats.Series, error)
}

// Store is a Persister with connection lifecycle operations.
type Store interface {
	Persister

	// Migrate creates or upgrades the schema.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}
