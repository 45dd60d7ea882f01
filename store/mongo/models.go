package mongo

import (
	"fmt"
	"time"

	"github.com/xraph/jobqueue/entry"
)

// ── Entry model ───────────────────────────────────────────────────

type entryModel struct {
	ID      int64      `bson:"_id"`
	Name    string     `bson:"name"`
	Args    string     `bson:"args"`
	Lane    string     `bson:"lane"`
	AddedAt time.Time  `bson:"added_at"`
	RunAt   time.Time  `bson:"run_at"`
	EndedAt *time.Time `bson:"ended_at,omitempty"`
	Retries int        `bson:"retries"`
	State   int        `bson:"state"`
	Error   string     `bson:"error"`
}

func toEntryModel(id int64, d *entry.Draft) (*entryModel, error) {
	d.Normalize()
	args, err := d.Args.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: encode args: %w", err)
	}
	return &entryModel{
		ID:      id,
		Name:    d.Name,
		Args:    string(args),
		Lane:    d.Lane,
		AddedAt: d.AddedAt.UTC(),
		RunAt:   d.RunAt.UTC(),
		Retries: d.Retries,
		State:   int(entry.StateEnqueued),
	}, nil
}

func fromEntryModel(m *entryModel) (*entry.Entry, error) {
	args, err := entry.ParseArgs([]byte(m.Args))
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: decode args of entry %d: %w", m.ID, err)
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
	EntryID   int64     `bson:"entry_id"`
	State     int       `bson:"state"`
	ChangedAt time.Time `bson:"changed_at"`
}

func (m *stateChangeModel) change() entry.StateChange {
	return entry.StateChange{
		EntryID:   m.EntryID,
		State:     entry.State(m.State),
		Timestamp: m.ChangedAt.UTC(),
	}
}

// ── Counter model ─────────────────────────────────────────────────

type counterModel struct {
	ID  string `bson:"_id"`
	Seq int64  `bson:"seq"`
}
