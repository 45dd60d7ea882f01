package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
)

const entryColumns = `id, name, args, lane, added_at, run_at, ended_at, retries, state, error`

// scanEntry reads one row selected with entryColumns.
func scanEntry(row pgx.Row) (*entry.Entry, error) {
	var (
		e       entry.Entry
		args    []byte
		endedAt *time.Time
		state   int16
	)
	err := row.Scan(&e.ID, &e.Name, &args, &e.Lane, &e.AddedAt, &e.RunAt, &endedAt, &e.Retries, &state, &e.Error)
	if err != nil {
		return nil, err
	}

	e.Args, err = entry.ParseArgs(args)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: decode args of entry %d: %w", e.ID, err)
	}
	e.AddedAt = e.AddedAt.UTC()
	e.RunAt = e.RunAt.UTC()
	if endedAt != nil {
		t := endedAt.UTC()
		e.EndedAt = &t
	}
	e.State = entry.State(state)
	return &e, nil
}

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, id int64) (*entry.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM jobqueue_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if err != nil {
		if isNoRows(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("jobqueue/postgres: get entry: %w", err)
	}
	return e, nil
}

// Insert stores a new Enqueued entry and its first state change in a
// single statement.
func (s *Store) Insert(ctx context.Context, d *entry.Draft) (*entry.Entry, error) {
	d.Normalize()
	args, err := d.Args.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: encode args: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		WITH e AS (
			INSERT INTO jobqueue_entries (name, args, lane, added_at, run_at, retries, state)
			VALUES ($1, $2::jsonb, $3, $4, $5, $6, $7)
			RETURNING `+entryColumns+`
		), c AS (
			INSERT INTO jobqueue_state_changes (entry_id, state, changed_at)
			SELECT id, state, added_at FROM e
		)
		SELECT `+entryColumns+` FROM e`,
		d.Name, string(args), d.Lane, d.AddedAt.UTC(), d.RunAt.UTC(), d.Retries, int16(entry.StateEnqueued),
	)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: insert entry: %w", err)
	}
	return e, nil
}

// SetProcessedState marks the entry Processed.
func (s *Store) SetProcessedState(ctx context.Context, id int64, endedAt time.Time) error {
	return s.finish(ctx, id, entry.StateProcessed, endedAt, "")
}

// SetFailedState marks the entry Failed.
func (s *Store) SetFailedState(ctx context.Context, id int64, endedAt time.Time, errText string) error {
	return s.finish(ctx, id, entry.StateFailed, endedAt, errText)
}

// SetDeadState marks the entry Dead.
func (s *Store) SetDeadState(ctx context.Context, id int64, endedAt time.Time, errText string) error {
	return s.finish(ctx, id, entry.StateDead, endedAt, errText)
}

// finish records the end of an attempt.
func (s *Store) finish(ctx context.Context, id int64, state entry.State, endedAt time.Time, errText string) error {
	return s.transition(ctx, id, state, `
		WITH u AS (
			UPDATE jobqueue_entries
			SET state = $2::smallint, ended_at = $3::timestamptz, error = $4
			WHERE id = $1
			RETURNING id
		)
		INSERT INTO jobqueue_state_changes (entry_id, state, changed_at)
		SELECT id, $2::smallint, $3::timestamptz FROM u
		RETURNING entry_id`,
		id, int16(state), endedAt.UTC(), errText,
	)
}

// SetRetriedState marks the entry Retried. The update only matches
// Processed, Failed or Dead rows, so of two concurrent retries one wins and
// the other gets ErrEntryNotRetryable.
func (s *Store) SetRetriedState(ctx context.Context, id int64) error {
	from := make([]int16, len(entry.RetryableStates))
	for i, st := range entry.RetryableStates {
		from[i] = int16(st)
	}
	err := s.transition(ctx, id, entry.StateRetried, `
		WITH u AS (
			UPDATE jobqueue_entries SET state = $2::smallint
			WHERE id = $1 AND state = ANY($4::smallint[])
			RETURNING id
		)
		INSERT INTO jobqueue_state_changes (entry_id, state, changed_at)
		SELECT id, $2::smallint, $3::timestamptz FROM u
		RETURNING entry_id`,
		id, int16(entry.StateRetried), s.clock.Now().UTC(), from,
	)
	if !errors.Is(err, jobqueue.ErrEntryNotFound) {
		return err
	}

	var state int16
	if err := s.pool.QueryRow(ctx, `SELECT state FROM jobqueue_entries WHERE id = $1`, id).Scan(&state); err != nil {
		if isNoRows(err) {
			return notFound(id)
		}
		return fmt.Errorf("jobqueue/postgres: get entry %d state: %w", id, err)
	}
	return fmt.Errorf("%w: entry %d is %s", jobqueue.ErrEntryNotRetryable, id, entry.State(state))
}

// transition runs a statement that returns the entry id when it matched.
func (s *Store) transition(ctx context.Context, id int64, state entry.State, sql string, args ...any) error {
	var got int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&got); err != nil {
		if isNoRows(err) {
			return notFound(id)
		}
		return fmt.Errorf("jobqueue/postgres: set entry %d %s: %w", id, state, err)
	}
	return nil
}

// Counts returns the number of enqueued, failed and dead entries.
func (s *Store) Counts(ctx context.Context) (entry.Counts, error) {
	var c entry.Counts
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE state = $1),
			COUNT(*) FILTER (WHERE state = $2),
			COUNT(*) FILTER (WHERE state = $3)
		FROM jobqueue_entries`,
		int16(entry.StateEnqueued), int16(entry.StateFailed), int16(entry.StateDead),
	).Scan(&c.Enqueued, &c.Failed, &c.Dead)
	if err != nil {
		return entry.Counts{}, fmt.Errorf("jobqueue/postgres: count entries: %w", err)
	}
	return c, nil
}

// EnqueuedEntries returns enqueued entries, oldest first.
func (s *Store) EnqueuedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateEnqueued, "added_at ASC, id ASC")
}

// FailedEntries returns failed entries, newest first.
func (s *Store) FailedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateFailed, "added_at DESC, id DESC")
}

// DeadEntries returns dead entries, oldest first.
func (s *Store) DeadEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateDead, "added_at ASC, id ASC")
}

// listByState selects entries in state. order is a trusted constant.
func (s *Store) listByState(ctx context.Context, state entry.State, order string) ([]*entry.Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM jobqueue_entries WHERE state = $1 ORDER BY `+order,
		int16(state),
	)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: list %s entries: %w", state, err)
	}
	defer rows.Close()

	out := make([]*entry.Entry, 0)
	for rows.Next() {
		e, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("jobqueue/postgres: scan %s entry: %w", state, scanErr)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: list %s entries: %w", state, err)
	}
	return out, nil
}

// Stats buckets state changes in [start, end].
func (s *Store) Stats(ctx context.Context, start, end time.Time, g stats.Granularity) (*stats.Series, error) {
	if _, err := g.BucketSize(); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, state, changed_at
		FROM jobqueue_state_changes
		WHERE changed_at >= $1 AND changed_at <= $2
		ORDER BY changed_at ASC`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: query state changes: %w", err)
	}

	changes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entry.StateChange, error) {
		var (
			c     entry.StateChange
			state int16
		)
		if err := row.Scan(&c.EntryID, &state, &c.Timestamp); err != nil {
			return c, err
		}
		c.State = entry.State(state)
		c.Timestamp = c.Timestamp.UTC()
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue/postgres: scan state changes: %w", err)
	}
	return stats.Aggregate(changes, start, end, g)
}
