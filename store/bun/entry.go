package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
)

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, id int64) (*entry.Entry, error) {
	m := new(entryModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("jobqueue/bun: get entry: %w", err)
	}
	return fromEntryModel(m)
}

// Insert persists a new Enqueued entry and its first state change in one
// transaction.
func (s *Store) Insert(ctx context.Context, d *entry.Draft) (*entry.Entry, error) {
	m, err := toEntryModel(d)
	if err != nil {
		return nil, err
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return fmt.Errorf("jobqueue/bun: insert entry: %w", err)
		}
		return s.recordChange(ctx, tx, m.ID, entry.StateEnqueued, m.AddedAt)
	})
	if err != nil {
		return nil, err
	}
	return fromEntryModel(m)
}

// SetProcessedState marks the entry Processed.
func (s *Store) SetProcessedState(ctx context.Context, id int64, endedAt time.Time) error {
	return s.transition(ctx, id, entry.StateProcessed, endedAt, "", true, nil)
}

// SetFailedState marks the entry Failed.
func (s *Store) SetFailedState(ctx context.Context, id int64, endedAt time.Time, errText string) error {
	return s.transition(ctx, id, entry.StateFailed, endedAt, errText, true, nil)
}

// SetDeadState marks the entry Dead.
func (s *Store) SetDeadState(ctx context.Context, id int64, endedAt time.Time, errText string) error {
	return s.transition(ctx, id, entry.StateDead, endedAt, errText, true, nil)
}

// SetRetriedState marks the entry Retried. EndedAt and Error are kept.
// Only Processed, Failed or Dead rows match; anything else yields
// ErrEntryNotRetryable.
func (s *Store) SetRetriedState(ctx context.Context, id int64) error {
	return s.transition(ctx, id, entry.StateRetried, s.clock.Now(), "", false, entry.RetryableStates)
}

// transition updates the row and records the change in one transaction.
// A non-empty from restricts the update to rows in those states.
func (s *Store) transition(ctx context.Context, id int64, state entry.State, at time.Time, errText string, terminal bool, from []entry.State) error {
	at = at.UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewUpdate().
			Model((*entryModel)(nil)).
			Set("state = ?", int16(state)).
			Where("id = ?", id)
		if terminal {
			q = q.Set("ended_at = ?", at).Set("error = ?", errText)
		}
		if len(from) > 0 {
			states := make([]int16, len(from))
			for i, st := range from {
				states[i] = int16(st)
			}
			q = q.Where("state IN (?)", bun.In(states))
		}
		res, err := q.Exec(ctx)
		if err != nil {
			return fmt.Errorf("jobqueue/bun: set entry %d %s: %w", id, state, err)
		}
		if err := checkAffected(res, id); err != nil {
			if len(from) == 0 {
				return err
			}
			return s.explainMiss(ctx, tx, id)
		}
		return s.recordChange(ctx, tx, id, state, at)
	})
}

// explainMiss tells a missing row apart from one in the wrong state.
func (s *Store) explainMiss(ctx context.Context, tx bun.Tx, id int64) error {
	var current int16
	err := tx.NewSelect().
		Model((*entryModel)(nil)).
		Column("state").
		Where("id = ?", id).
		Scan(ctx, &current)
	if err != nil {
		if isNoRows(err) {
			return notFound(id)
		}
		return fmt.Errorf("jobqueue/bun: get entry %d state: %w", id, err)
	}
	return fmt.Errorf("%w: entry %d is %s", jobqueue.ErrEntryNotRetryable, id, entry.State(current))
}

func (s *Store) recordChange(ctx context.Context, tx bun.Tx, id int64, state entry.State, at time.Time) error {
	_, err := tx.NewInsert().Model(&stateChangeModel{
		EntryID:   id,
		State:     int16(state),
		ChangedAt: at.UTC(),
	}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("jobqueue/bun: record state change: %w", err)
	}
	return nil
}

// Counts returns the number of enqueued, failed and dead entries.
func (s *Store) Counts(ctx context.Context) (entry.Counts, error) {
	var rows []struct {
		State int16 `bun:"state"`
		N     int64 `bun:"n"`
	}
	err := s.db.NewSelect().
		Model((*entryModel)(nil)).
		Column("state").
		ColumnExpr("COUNT(*) AS n").
		Where("state IN (?)", bun.In([]int16{
			int16(entry.StateEnqueued), int16(entry.StateFailed), int16(entry.StateDead),
		})).
		Group("state").
		Scan(ctx, &rows)
	if err != nil {
		return entry.Counts{}, fmt.Errorf("jobqueue/bun: count entries: %w", err)
	}

	var c entry.Counts
	for _, r := range rows {
		switch entry.State(r.State) {
		case entry.StateEnqueued:
			c.Enqueued = r.N
		case entry.StateFailed:
			c.Failed = r.N
		case entry.StateDead:
			c.Dead = r.N
		}
	}
	return c, nil
}

// EnqueuedEntries returns enqueued entries, oldest first.
func (s *Store) EnqueuedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateEnqueued, "added_at ASC", "id ASC")
}

// FailedEntries returns failed entries, newest first.
func (s *Store) FailedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateFailed, "added_at DESC", "id DESC")
}

// DeadEntries returns dead entries, oldest first.
func (s *Store) DeadEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateDead, "added_at ASC", "id ASC")
}

func (s *Store) listByState(ctx context.Context, state entry.State, order ...string) ([]*entry.Entry, error) {
	var models []entryModel
	err := s.db.NewSelect().
		Model(&models).
		Where("state = ?", int16(state)).
		Order(order...).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: list %s entries: %w", state, err)
	}

	out := make([]*entry.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromEntryModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, e)
	}
	return out, nil
}

// Stats buckets state changes in [start, end].
func (s *Store) Stats(ctx context.Context, start, end time.Time, g stats.Granularity) (*stats.Series, error) {
	if _, err := g.BucketSize(); err != nil {
		return nil, err
	}

	var models []stateChangeModel
	err := s.db.NewSelect().
		Model(&models).
		Where("changed_at >= ?", start.UTC()).
		Where("changed_at <= ?", end.UTC()).
		Order("changed_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/bun: query state changes: %w", err)
	}

	changes := make([]entry.StateChange, len(models))
	for i := range models {
		changes[i] = fromStateChangeModel(&models[i])
	}
	return stats.Aggregate(changes, start, end, g)
}
