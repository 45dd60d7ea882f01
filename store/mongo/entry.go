package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
)

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, id int64) (*entry.Entry, error) {
	var m entryModel
	err := s.db.Collection(colEntries).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
		}
		return nil, fmt.Errorf("jobqueue/mongo: get entry: %w", err)
	}
	return fromEntryModel(&m)
}

// Insert assigns the next id from the counter document and stores a new
// Enqueued entry.
func (s *Store) Insert(ctx context.Context, d *entry.Draft) (*entry.Entry, error) {
	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}
	m, err := toEntryModel(id, d)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Collection(colEntries).InsertOne(ctx, m); err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: insert entry: %w", err)
	}
	if err := s.recordChange(ctx, id, entry.StateEnqueued, m.AddedAt); err != nil {
		return nil, err
	}
	return fromEntryModel(m)
}

func (s *Store) nextID(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counterModel
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": entrySeq},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("jobqueue/mongo: next entry id: %w", err)
	}
	return c.Seq, nil
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
// The filter only matches Processed, Failed or Dead documents, so a second
// retry gets ErrEntryNotRetryable.
func (s *Store) SetRetriedState(ctx context.Context, id int64) error {
	return s.transition(ctx, id, entry.StateRetried, s.clock.Now(), "", false, entry.RetryableStates)
}

// transition sets the new state. A non-empty from restricts the update to
// documents in those states.
func (s *Store) transition(ctx context.Context, id int64, state entry.State, at time.Time, errText string, terminal bool, from []entry.State) error {
	at = at.UTC()
	set := bson.M{"state": int(state)}
	if terminal {
		set["ended_at"] = at
		set["error"] = errText
	}

	filter := bson.M{"_id": id}
	if len(from) > 0 {
		states := make(bson.A, len(from))
		for i, st := range from {
			states[i] = int(st)
		}
		filter["state"] = bson.M{"$in": states}
	}

	col := s.db.Collection(colEntries)
	res, err := col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("jobqueue/mongo: set entry %d %s: %w", id, state, err)
	}
	if res.MatchedCount == 0 {
		if len(from) == 0 {
			return fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
		}
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: entry %d is %s", jobqueue.ErrEntryNotRetryable, id, current.State)
	}
	return s.recordChange(ctx, id, state, at)
}

func (s *Store) recordChange(ctx context.Context, id int64, state entry.State, at time.Time) error {
	_, err := s.db.Collection(colStateChanges).InsertOne(ctx, &stateChangeModel{
		EntryID:   id,
		State:     int(state),
		ChangedAt: at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("jobqueue/mongo: record state change: %w", err)
	}
	return nil
}

// Counts returns the number of enqueued, failed and dead entries.
func (s *Store) Counts(ctx context.Context) (entry.Counts, error) {
	col := s.db.Collection(colEntries)
	count := func(state entry.State) (int64, error) {
		n, err := col.CountDocuments(ctx, bson.M{"state": int(state)})
		if err != nil {
			return 0, fmt.Errorf("jobqueue/mongo: count %s entries: %w", state, err)
		}
		return n, nil
	}

	var c entry.Counts
	var err error
	if c.Enqueued, err = count(entry.StateEnqueued); err != nil {
		return entry.Counts{}, err
	}
	if c.Failed, err = count(entry.StateFailed); err != nil {
		return entry.Counts{}, err
	}
	if c.Dead, err = count(entry.StateDead); err != nil {
		return entry.Counts{}, err
	}
	return c, nil
}

// EnqueuedEntries returns enqueued entries, oldest first.
func (s *Store) EnqueuedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateEnqueued, 1)
}

// FailedEntries returns failed entries, newest first.
func (s *Store) FailedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateFailed, -1)
}

// DeadEntries returns dead entries, oldest first.
func (s *Store) DeadEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateDead, 1)
}

// listByState sorts by added_at then _id in direction dir (1 or -1).
func (s *Store) listByState(ctx context.Context, state entry.State, dir int) ([]*entry.Entry, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "added_at", Value: dir},
		{Key: "_id", Value: dir},
	})
	cursor, err := s.db.Collection(colEntries).Find(ctx, bson.M{"state": int(state)}, opts)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: list %s entries: %w", state, err)
	}

	var models []entryModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: decode %s entries: %w", state, err)
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

	filter := bson.M{"changed_at": bson.M{"$gte": start.UTC(), "$lte": end.UTC()}}
	cursor, err := s.db.Collection(colStateChanges).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: query state changes: %w", err)
	}

	var models []stateChangeModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("jobqueue/mongo: decode state changes: %w", err)
	}

	changes := make([]entry.StateChange, len(models))
	for i := range models {
		changes[i] = models[i].change()
	}
	return stats.Aggregate(changes, start, end, g)
}
