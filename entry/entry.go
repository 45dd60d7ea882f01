package entry

import (
	"fmt"
	"time"
)

// State represents the lifecycle state of an entry.
type State int

const (
	// StateEnqueued means the entry is waiting to run.
	StateEnqueued State = 0
	// StateProcessed means the handler completed without error.
	StateProcessed State = 1
	// StateFailed means the handler failed and a retry was scheduled.
	StateFailed State = 2
	// StateDead means the handler failed and the retry ceiling was reached.
	StateDead State = 3
	// StateRetried means the entry was manually re-triggered.
	StateRetried State = 4
)

// States lists every state in the order used by stats series.
var States = []State{StateEnqueued, StateProcessed, StateFailed, StateDead, StateRetried}

func (s State) String() string {
	switch s {
	case StateEnqueued:
		return "enqueued"
	case StateProcessed:
		return "processed"
	case StateFailed:
		return "failed"
	case StateDead:
		return "dead"
	case StateRetried:
		return "retried"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RetryableStates are the states a manual retry may start from.
var RetryableStates = []State{StateProcessed, StateFailed, StateDead}

// Retryable reports whether an entry in s may be manually retried. Enqueued
// entries have not finished and Retried entries already have a replacement.
func (s State) Retryable() bool {
	return s == StateProcessed || s == StateFailed || s == StateDead
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s >= StateEnqueued && s <= StateRetried
}

// Entry is one persisted attempt of a job invocation.
type Entry struct {
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Args    Args       `json:"args"`
	Lane    string     `json:"lane"`
	AddedAt time.Time  `json:"added_at"`
	RunAt   time.Time  `json:"run_at"`
	EndedAt *time.Time `json:"ended_at,omitempty"`
	Retries int        `json:"retries"`
	State   State      `json:"state"`
	Error   string     `json:"error,omitempty"`
}

// Due reports whether the entry may be dispatched at now.
func (e *Entry) Due(now time.Time) bool {
	return !e.RunAt.After(now)
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	cp := *e
	cp.Args = e.Args.Clone()
	if e.EndedAt != nil {
		t := *e.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// Draft is the input to a persister insert. The persister assigns the ID
// and the Enqueued state.
type Draft struct {
	Name    string
	Args    Args
	Lane    string
	AddedAt time.Time
	RunAt   time.Time
	Retries int
}

// Normalize fills RunAt from AddedAt when it is unset.
func (d *Draft) Normalize() {
	if d.RunAt.IsZero() {
		d.RunAt = d.AddedAt
	}
}

// Entry builds an Enqueued entry from the draft with the given id.
func (d *Draft) Entry(id int64) *Entry {
	d.Normalize()
	return &Entry{
		ID:      id,
		Name:    d.Name,
		Args:    d.Args.Clone(),
		Lane:    d.Lane,
		AddedAt: d.AddedAt,
		RunAt:   d.RunAt,
		Retries: d.Retries,
		State:   StateEnqueued,
	}
}

// StateChange is one append-only record of an entry transition.
type StateChange struct {
	EntryID   int64     `json:"entry_id"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Counts summarizes entries by actionable state.
type Counts struct {
	Enqueued int64 `json:"enqueued"`
	Failed   int64 `json:"failed"`
	Dead     int64 `json:"dead"`
}
