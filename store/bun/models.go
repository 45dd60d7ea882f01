package bunstore

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue/entry"
)

// ── Entry model ───────────────────────────────────────────────────

type entryModel struct {
	bun.BaseModel `bun:"table:jobqueue_entries"`

	ID      int64      `bun:"id,pk,autoincrement"`
	Name    string     `bun:"name,notnull"`
	Args    string     `bun:"args,notnull"`
	Lane    string     `bun:"lane,notnull"`
	AddedAt time.Time  `bun:"added_at,notnull"`
	RunAt   time.Time  `bun:"run_at,notnull"`
	EndedAt *time.Time `bun:"ended_at"`
	Retries int        `bun:"retries,notnull"`
	State   int16      `bun:"state,notnull"`
	Error   string     `bun:"error,notnull"`
}

func toEntryModel(d *entry.Draft) (*entryModel, error) {
	d.Normalize()
	args, err := d.Args.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: encode args: %w", err)
	}
	return &entryModel{
		Name:    d.Name,
		Args:    string(args),
		Lane:    d.Lane,
		AddedAt: d.AddedAt.UTC(),
		RunAt:   d.RunAt.UTC(),
		Retries: d.Retries,
		State:   int16(entry.StateEnqueued),
	}, nil
}

func fromEntryModel(m *entryModel) (*entry.Entry, error) {
	args, err := entry.ParseArgs([]byte(m.Args))
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: decode args of entry %d: %w", m.ID, err)
	}
	e := &entry.Entry{
		ID:      m.ID,
		Name:    m.Name,
		Args:    args,
		Lane:    m.Lane,
		AddedAt: m.AddedAt.UTC(),
		RunAt:   m.RunAt.UTC(),
		Retries: m.Retries,
		State:   entry.State(m.State),
		Error:   m.Error,
	}
	if m.EndedAt != nil {
		t := m.EndedAt.UTC()
		e.EndedAt = &t
	}
	return e, nil
}

// ── State change model ────────────────────────────────────────────

type stateChangeModel struct {
	bun.BaseModel `bun:"table:jobqueue_state_changes"`

	ID        int64     `bun:"id,pk,autoincrement"`
	EntryID   int64     `bun:"entry_id,notnull"`
	State     int16     `bun:"state,notnull"`
	ChangedAt time.Time `bun:"changed_at,notnull"`
}

func fromStateChangeModel(m *stateChangeModel) entry.StateChange {
	return entry.StateChange{
		EntryID:   m.EntryID,
		State:     entry.State(m.State),
		Timestamp: m.ChangedAt.UTC(),
	}
}
