// Package memory provides an in-memory implementation of store.Store.
// It is safe for concurrent use and intended for tests and development;
// nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
	"github.com/xraph/jobqueue/store"
)

var _ store.Store = (*Store)(nil)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	clock   clockwork.Clock
	closed  bool
	nextID  int64
	entries map[int64]*entry.Entry
	changes []entry.StateChange
}

// Option configures a memory Store.
type Option func(*Store)

// WithClock sets the clock used to timestamp manual retries.
func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:   clockwork.NewRealClock(),
		entries: make(map[int64]*entry.Entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping fails only after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return jobqueue.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later writes and lookups return
// ErrStoreClosed; the data stays readable through StateChanges and Len.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Entries
// ──────────────────────────────────────────────────

// Get returns a copy of the entry with the given id.
func (s *Store) Get(_ context.Context, id int64) (*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, jobqueue.ErrStoreClosed
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
	}
	return e.Clone(), nil
}

// Insert stores a new Enqueued entry.
func (s *Store) Insert(_ context.Context, d *entry.Draft) (*entry.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, jobqueue.ErrStoreClosed
	}
	s.nextID++
	e := d.Entry(s.nextID)
	s.entries[e.ID] = e
	s.record(e.ID, entry.StateEnqueued, e.AddedAt)
	return e.Clone(), nil
}

// SetProcessedState marks the entry Processed.
func (s *Store) SetProcessedState(_ context.Context, id int64, endedAt time.Time) error {
	return s.transition(id, entry.StateProcessed, endedAt, "", true, nil)
}

// SetFailedState marks the entry Failed.
func (s *Store) SetFailedState(_ context.Context, id int64, endedAt time.Time, errText string) error {
	return s.transition(id, entry.StateFailed, endedAt, errText, true, nil)
}

// SetDeadState marks the entry Dead.
func (s *Store) SetDeadState(_ context.Context, id int64, endedAt time.Time, errText string) error {
	return s.transition(id, entry.StateDead, endedAt, errText, true, nil)
}

// SetRetriedState marks the entry Retried. It fails with
// ErrEntryNotRetryable unless the entry is Processed, Failed or Dead.
func (s *Store) SetRetriedState(_ context.Context, id int64) error {
	return s.transition(id, entry.StateRetried, s.clock.Now().UTC(), "", false, entry.State.Retryable)
}

// transition moves entry id to state. When allowed is set the current state
// must satisfy it.
func (s *Store) transition(id int64, state entry.State, at time.Time, errText string, terminal bool, allowed func(entry.State) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return jobqueue.ErrStoreClosed
	}
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
	}
	if allowed != nil && !allowed(e.State) {
		return fmt.Errorf("%w: entry %d is %s", jobqueue.ErrEntryNotRetryable, id, e.State)
	}
	e.State = state
	if terminal {
		ended := at
		e.EndedAt = &ended
		e.Error = errText
	}
	s.record(id, state, at)
	return nil
}

// record appends a state change. Caller must hold s.mu.
func (s *Store) record(id int64, state entry.State, at time.Time) {
	s.changes = append(s.changes, entry.StateChange{EntryID: id, State: state, Timestamp: at})
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// Counts returns the number of enqueued, failed and dead entries.
func (s *Store) Counts(_ context.Context) (entry.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return entry.Counts{}, jobqueue.ErrStoreClosed
	}

	var c entry.Counts
	for _, e := range s.entries {
		switch e.State {
		case entry.StateEnqueued:
			c.Enqueued++
		case entry.StateFailed:
			c.Failed++
		case entry.StateDead:
			c.Dead++
		}
	}
	return c, nil
}

// EnqueuedEntries returns enqueued entries, oldest first.
func (s *Store) EnqueuedEntries(_ context.Context) ([]*entry.Entry, error) {
	return s.byState(entry.StateEnqueued, false)
}

// FailedEntries returns failed entries, newest first.
func (s *Store) FailedEntries(_ context.Context) ([]*entry.Entry, error) {
	return s.byState(entry.StateFailed, true)
}

// DeadEntries returns dead entries, oldest first.
func (s *Store) DeadEntries(_ context.Context) ([]*entry.Entry, error) {
	return s.byState(entry.StateDead, false)
}

func (s *Store) byState(state entry.State, desc bool) ([]*entry.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, jobqueue.ErrStoreClosed
	}

	out := make([]*entry.Entry, 0)
	for _, e := range s.entries {
		if e.State == state {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		if a.AddedAt.Equal(b.AddedAt) {
			return a.ID < b.ID
		}
		return a.AddedAt.Before(b.AddedAt)
	})
	return out, nil
}

// Stats buckets the state changes in [start, end].
func (s *Store) Stats(_ context.Context, start, end time.Time, g stats.Granularity) (*stats.Series, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, jobqueue.ErrStoreClosed
	}
	changes := make([]entry.StateChange, len(s.changes))
	copy(changes, s.changes)
	s.mu.RUnlock()

	return stats.Aggregate(changes, start, end, g)
}

// StateChanges returns a copy of the full state-change log.
func (s *Store) StateChanges() []entry.StateChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]entry.StateChange, len(s.changes))
	copy(out, s.changes)
	return out
}

// Len returns the total number of entries in every state.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
