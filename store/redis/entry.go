package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
)

// Get retrieves an entry by ID.
func (s *Store) Get(ctx context.Context, id int64) (*entry.Entry, error) {
	vals, err := s.client.HGetAll(ctx, entryKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: get entry: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
	}
	return mapToEntry(vals)
}

// Insert assigns the next id from the sequence key and stores the entry,
// its state index and its first state change in one MULTI block.
func (s *Store) Insert(ctx context.Context, d *entry.Draft) (*entry.Entry, error) {
	d.Normalize()
	id, err := s.client.Incr(ctx, entrySeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: next entry id: %w", err)
	}
	seq, err := s.client.Incr(ctx, changeSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: next change seq: %w", err)
	}

	e := d.Entry(id)
	e.AddedAt = e.AddedAt.UTC()
	e.RunAt = e.RunAt.UTC()
	fields, err := entryToMap(e)
	if err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, entryKey(id), fields)
	pipe.ZAdd(ctx, stateKey(entry.StateEnqueued), goredis.Z{Score: score(e.AddedAt), Member: id})
	pipe.ZAdd(ctx, changesKey, changeZ(seq, id, entry.StateEnqueued, e.AddedAt))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("jobqueue/redis: insert entry: %w", err)
	}
	return e, nil
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
// Only Processed, Failed or Dead entries are swapped; anything else yields
// ErrEntryNotRetryable.
func (s *Store) SetRetriedState(ctx context.Context, id int64) error {
	return s.transition(ctx, id, entry.StateRetried, s.clock.Now(), "", false, entry.RetryableStates)
}

// swapState sets the state field of KEYS[1] to ARGV[1] when the entry
// exists and its current state is one of ARGV[2:]. Replies {0} when
// missing, {2, prev} when refused and {1, prev} on success.
var swapState = goredis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'state')
if not prev then
	return {0}
end
for i = 2, #ARGV do
	if ARGV[i] == prev then
		redis.call('HSET', KEYS[1], 'state', ARGV[1])
		return {1, prev}
	end
end
return {2, prev}
`)

// transition swaps the state atomically, then moves the entry between
// state indexes and logs the change. A non-empty from restricts the swap
// to entries in those states.
func (s *Store) transition(ctx context.Context, id int64, state entry.State, at time.Time, errText string, terminal bool, from []entry.State) error {
	at = at.UTC()
	key := entryKey(id)

	// added_at never changes after insert, so it is safe to read apart
	// from the swap.
	vals, err := s.client.HMGet(ctx, key, "state", "added_at").Result()
	if err != nil {
		return fmt.Errorf("jobqueue/redis: read entry %d: %w", id, err)
	}
	if vals[0] == nil {
		return fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
	}
	if _, err := parseState(str(vals[0])); err != nil {
		return fmt.Errorf("jobqueue/redis: entry %d: %w", id, err)
	}
	addedAt, err := parseTime("added_at", str(vals[1]))
	if err != nil {
		return fmt.Errorf("jobqueue/redis: entry %d: %w", id, err)
	}

	if len(from) == 0 {
		from = entry.States
	}
	argv := []any{strconv.Itoa(int(state))}
	for _, st := range from {
		argv = append(argv, strconv.Itoa(int(st)))
	}
	reply, err := swapState.Run(ctx, s.client, []string{key}, argv...).Slice()
	if err != nil {
		return fmt.Errorf("jobqueue/redis: set entry %d %s: %w", id, state, err)
	}
	code, _ := reply[0].(int64)
	if code == 0 {
		return fmt.Errorf("%w: %d", jobqueue.ErrEntryNotFound, id)
	}
	prev, err := parseState(str(reply[1]))
	if err != nil {
		return fmt.Errorf("jobqueue/redis: entry %d: %w", id, err)
	}
	if code == 2 {
		return fmt.Errorf("%w: entry %d is %s", jobqueue.ErrEntryNotRetryable, id, prev)
	}

	seq, err := s.client.Incr(ctx, changeSeqKey).Result()
	if err != nil {
		return fmt.Errorf("jobqueue/redis: next change seq: %w", err)
	}

	pipe := s.client.TxPipeline()
	if terminal {
		pipe.HSet(ctx, key, "ended_at", at.Format(time.RFC3339Nano), "error", errText)
	}
	pipe.ZRem(ctx, stateKey(prev), id)
	pipe.ZAdd(ctx, stateKey(state), goredis.Z{Score: score(addedAt), Member: id})
	pipe.ZAdd(ctx, changesKey, changeZ(seq, id, state, at))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("jobqueue/redis: set entry %d %s: %w", id, state, err)
	}
	return nil
}

// Counts returns the number of enqueued, failed and dead entries.
func (s *Store) Counts(ctx context.Context) (entry.Counts, error) {
	pipe := s.client.Pipeline()
	enqueued := pipe.ZCard(ctx, stateKey(entry.StateEnqueued))
	failed := pipe.ZCard(ctx, stateKey(entry.StateFailed))
	dead := pipe.ZCard(ctx, stateKey(entry.StateDead))
	if _, err := pipe.Exec(ctx); err != nil {
		return entry.Counts{}, fmt.Errorf("jobqueue/redis: count entries: %w", err)
	}
	return entry.Counts{
		Enqueued: enqueued.Val(),
		Failed:   failed.Val(),
		Dead:     dead.Val(),
	}, nil
}

// EnqueuedEntries returns enqueued entries, oldest first.
func (s *Store) EnqueuedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateEnqueued, false)
}

// FailedEntries returns failed entries, newest first.
func (s *Store) FailedEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateFailed, true)
}

// DeadEntries returns dead entries, oldest first.
func (s *Store) DeadEntries(ctx context.Context) ([]*entry.Entry, error) {
	return s.listByState(ctx, entry.StateDead, false)
}

func (s *Store) listByState(ctx context.Context, state entry.State, desc bool) ([]*entry.Entry, error) {
	ids, err := s.client.ZRange(ctx, stateKey(state), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: list %s entries: %w", state, err)
	}
	if len(ids) == 0 {
		return []*entry.Entry{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, 0, len(ids))
	for _, member := range ids {
		id, parseErr := strconv.ParseInt(member, 10, 64)
		if parseErr != nil {
			continue
		}
		cmds = append(cmds, pipe.HGetAll(ctx, entryKey(id)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("jobqueue/redis: load %s entries: %w", state, err)
	}

	out := make([]*entry.Entry, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue // skip missing
		}
		e, convErr := mapToEntry(vals)
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, e)
	}

	// Scores tie at millisecond precision and members sort as strings, so
	// order by time then numeric id here.
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

// Stats buckets state changes in [start, end].
func (s *Store) Stats(ctx context.Context, start, end time.Time, g stats.Granularity) (*stats.Series, error) {
	if _, err := g.BucketSize(); err != nil {
		return nil, err
	}

	zs, err := s.client.ZRangeByScoreWithScores(ctx, changesKey, &goredis.ZRangeBy{
		Min: strconv.FormatInt(start.UnixMilli(), 10),
		Max: strconv.FormatInt(end.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: query state changes: %w", err)
	}

	changes := make([]entry.StateChange, 0, len(zs))
	for _, z := range zs {
		c, parseErr := parseChange(z)
		if parseErr != nil {
			s.logger.Warn("jobqueue/redis: skipping malformed state change", "error", parseErr)
			continue
		}
		changes = append(changes, c)
	}
	return stats.Aggregate(changes, start, end, g)
}

// ── helpers ──

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func changeZ(seq, id int64, state entry.State, at time.Time) goredis.Z {
	return goredis.Z{
		Score:  score(at),
		Member: fmt.Sprintf("%d:%d:%d", seq, id, int(state)),
	}
}

var errMalformedChange = errors.New("malformed state change member")

func parseChange(z goredis.Z) (entry.StateChange, error) {
	member, ok := z.Member.(string)
	if !ok {
		return entry.StateChange{}, errMalformedChange
	}
	parts := strings.Split(member, ":")
	if len(parts) != 3 {
		return entry.StateChange{}, fmt.Errorf("%w: %q", errMalformedChange, member)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return entry.StateChange{}, fmt.Errorf("%w: %q", errMalformedChange, member)
	}
	state, err := strconv.Atoi(parts[2])
	if err != nil {
		return entry.StateChange{}, fmt.Errorf("%w: %q", errMalformedChange, member)
	}
	return entry.StateChange{
		EntryID:   id,
		State:     entry.State(state),
		Timestamp: time.UnixMilli(int64(z.Score)).UTC(),
	}, nil
}

func entryToMap(e *entry.Entry) (map[string]any, error) {
	args, err := e.Args.MarshalText()
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: encode args: %w", err)
	}
	m := map[string]any{
		"id":       strconv.FormatInt(e.ID, 10),
		"name":     e.Name,
		"args":     string(args),
		"lane":     e.Lane,
		"added_at": e.AddedAt.Format(time.RFC3339Nano),
		"run_at":   e.RunAt.Format(time.RFC3339Nano),
		"retries":  strconv.Itoa(e.Retries),
		"state":    strconv.Itoa(int(e.State)),
		"error":    e.Error,
	}
	if e.EndedAt != nil {
		m["ended_at"] = e.EndedAt.Format(time.RFC3339Nano)
	}
	return m, nil
}

func mapToEntry(m map[string]string) (*entry.Entry, error) {
	id, err := strconv.ParseInt(m["id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: parse entry id: %w", err)
	}
	args, err := entry.ParseArgs([]byte(m["args"]))
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: decode args of entry %d: %w", id, err)
	}

	retries, err := strconv.Atoi(m["retries"])
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: entry %d: parse retries: %w", id, err)
	}
	state, err := parseState(m["state"])
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: entry %d: %w", id, err)
	}
	addedAt, err := parseTime("added_at", m["added_at"])
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: entry %d: %w", id, err)
	}
	runAt, err := parseTime("run_at", m["run_at"])
	if err != nil {
		return nil, fmt.Errorf("jobqueue/redis: entry %d: %w", id, err)
	}

	e := &entry.Entry{
		ID:      id,
		Name:    m["name"],
		Args:    args,
		Lane:    m["lane"],
		AddedAt: addedAt,
		RunAt:   runAt,
		Retries: retries,
		State:   state,
		Error:   m["error"],
	}
	if v := m["ended_at"]; v != "" {
		t, err := parseTime("ended_at", v)
		if err != nil {
			return nil, fmt.Errorf("jobqueue/redis: entry %d: %w", id, err)
		}
		e.EndedAt = &t
	}
	return e, nil
}

var errBadState = errors.New("unknown state")

func parseState(raw string) (entry.State, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse state %q: %w", raw, err)
	}
	st := entry.State(n)
	if !st.Valid() {
		return 0, fmt.Errorf("parse state %q: %w", raw, errBadState)
	}
	return st, nil
}

func parseTime(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return t.UTC(), nil
}

// str returns v as a string, or "" for nil replies.
func str(v any) string {
	s, _ := v.(string)
	return s
}
