// Package storetest is a conformance suite run against every store.Store
// backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/stats"
	"github.com/xraph/jobqueue/store"
)

// Factory returns a fresh, migrated, empty store. Cleanup is the
// factory's responsibility.
type Factory func(t *testing.T) store.Store

// Epoch is the base time used by the suite. Stores persist millisecond
// precision, so every timestamp is a whole millisecond.
var Epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Run executes the conformance suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Lifecycle", testLifecycle},
		{"InsertAndGet", testInsertAndGet},
		{"InsertAssignsIncreasingIDs", testIncreasingIDs},
		{"GetMissing", testGetMissing},
		{"Transitions", testTransitions},
		{"TransitionMissing", testTransitionMissing},
		{"RetriedOnce", testRetriedOnce},
		{"RetriedRequiresFinished", testRetriedRequiresFinished},
		{"Counts", testCounts},
		{"ListOrdering", testListOrdering},
		{"Stats", testStats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func draft(name string, addedAt time.Time, args ...any) *entry.Draft {
	a, err := entry.NewArgs(args...)
	if err != nil {
		panic(err)
	}
	return &entry.Draft{Name: name, Args: a, Lane: "default", AddedAt: addedAt}
}

func mustInsert(t *testing.T, s store.Store, d *entry.Draft) *entry.Entry {
	t.Helper()
	e, err := s.Insert(context.Background(), d)
	require.NoError(t, err)
	return e
}

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx), "second Migrate must be idempotent")
	require.NoError(t, s.Ping(ctx))
}

func testInsertAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	d := draft("send-email", Epoch, "alice@example.com", map[string]int{"n": 2})
	d.Lane = "critical"
	d.Retries = 3
	d.RunAt = Epoch.Add(time.Minute)

	e := mustInsert(t, s, d)
	assert.Positive(t, e.ID)
	assert.Equal(t, entry.StateEnqueued, e.State)
	assert.Nil(t, e.EndedAt)
	assert.Empty(t, e.Error)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "send-email", got.Name)
	assert.Equal(t, "critical", got.Lane)
	assert.Equal(t, 3, got.Retries)
	assert.Equal(t, entry.StateEnqueued, got.State)
	assert.True(t, Epoch.Equal(got.AddedAt), "AddedAt = %v", got.AddedAt)
	assert.True(t, Epoch.Add(time.Minute).Equal(got.RunAt), "RunAt = %v", got.RunAt)
	require.Equal(t, 2, got.Args.Len())

	var to string
	var opts map[string]int
	require.NoError(t, got.Args.Decode(0, &to))
	require.NoError(t, got.Args.Decode(1, &opts))
	assert.Equal(t, "alice@example.com", to)
	assert.Equal(t, 2, opts["n"])

	// RunAt defaults to AddedAt.
	e2 := mustInsert(t, s, draft("noop", Epoch))
	got2, err := s.Get(ctx, e2.ID)
	require.NoError(t, err)
	assert.True(t, Epoch.Equal(got2.RunAt), "RunAt = %v", got2.RunAt)
	assert.Equal(t, 0, got2.Args.Len())
}

func testIncreasingIDs(t *testing.T, s store.Store) {
	var last int64
	for i := range 5 {
		e := mustInsert(t, s, draft("n", Epoch.Add(time.Duration(i)*time.Second)))
		assert.Greater(t, e.ID, last)
		last = e.ID
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), 987654)
	require.ErrorIs(t, err, jobqueue.ErrEntryNotFound)
}

func testTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	ended := Epoch.Add(5 * time.Second)

	processed := mustInsert(t, s, draft("a", Epoch))
	failed := mustInsert(t, s, draft("b", Epoch))
	dead := mustInsert(t, s, draft("c", Epoch))

	require.NoError(t, s.SetProcessedState(ctx, processed.ID, ended))
	require.NoError(t, s.SetFailedState(ctx, failed.ID, ended, `{"message":"boom"}`))
	require.NoError(t, s.SetDeadState(ctx, dead.ID, ended, `{"message":"fatal"}`))

	got, err := s.Get(ctx, processed.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.StateProcessed, got.State)
	require.NotNil(t, got.EndedAt)
	assert.True(t, ended.Equal(*got.EndedAt))
	assert.Empty(t, got.Error)

	got, err = s.Get(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.StateFailed, got.State)
	assert.Equal(t, `{"message":"boom"}`, got.Error)

	got, err = s.Get(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.StateDead, got.State)
	assert.Equal(t, `{"message":"fatal"}`, got.Error)
	require.NotNil(t, got.EndedAt)

	require.NoError(t, s.SetRetriedState(ctx, dead.ID))
	got, err = s.Get(ctx, dead.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.StateRetried, got.State)
	assert.Equal(t, `{"message":"fatal"}`, got.Error, "retry keeps the failure description")
}

func testTransitionMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	const missing = int64(424242)

	require.ErrorIs(t, s.SetProcessedState(ctx, missing, Epoch), jobqueue.ErrEntryNotFound)
	require.ErrorIs(t, s.SetFailedState(ctx, missing, Epoch, "x"), jobqueue.ErrEntryNotFound)
	require.ErrorIs(t, s.SetDeadState(ctx, missing, Epoch, "x"), jobqueue.ErrEntryNotFound)
	require.ErrorIs(t, s.SetRetriedState(ctx, missing), jobqueue.ErrEntryNotFound)
}

func testRetriedOnce(t *testing.T, s store.Store) {
	ctx := context.Background()

	e := mustInsert(t, s, draft("r", Epoch))
	require.NoError(t, s.SetDeadState(ctx, e.ID, Epoch.Add(time.Second), "fatal"))
	require.NoError(t, s.SetRetriedState(ctx, e.ID))

	err := s.SetRetriedState(ctx, e.ID)
	require.ErrorIs(t, err, jobqueue.ErrEntryNotRetryable)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.StateRetried, got.State)

	// Retried changes are stamped with the store's clock.
	series, err := s.Stats(ctx, Epoch.Add(-time.Hour), time.Now().Add(time.Hour), stats.Month)
	require.NoError(t, err)
	assert.Equal(t, 1, series.Total(entry.StateRetried), "a rejected retry records no state change")
}

func testRetriedRequiresFinished(t *testing.T, s store.Store) {
	ctx := context.Background()

	e := mustInsert(t, s, draft("r", Epoch))
	require.ErrorIs(t, s.SetRetriedState(ctx, e.ID), jobqueue.ErrEntryNotRetryable)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.StateEnqueued, got.State)
}

func testCounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	ids := make([]int64, 6)
	for i := range ids {
		ids[i] = mustInsert(t, s, draft("c", Epoch)).ID
	}
	require.NoError(t, s.SetProcessedState(ctx, ids[0], Epoch))
	require.NoError(t, s.SetFailedState(ctx, ids[1], Epoch, "e"))
	require.NoError(t, s.SetDeadState(ctx, ids[2], Epoch, "e"))
	require.NoError(t, s.SetDeadState(ctx, ids[3], Epoch, "e"))

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, entry.Counts{Enqueued: 2, Failed: 1, Dead: 2}, c)
}

func testListOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()

	at := func(sec int) time.Time { return Epoch.Add(time.Duration(sec) * time.Second) }

	// Inserted out of AddedAt order.
	e3 := mustInsert(t, s, draft("e", at(3)))
	e1 := mustInsert(t, s, draft("e", at(1)))
	e2 := mustInsert(t, s, draft("e", at(2)))

	f1 := mustInsert(t, s, draft("f", at(1)))
	f3 := mustInsert(t, s, draft("f", at(3)))
	f2 := mustInsert(t, s, draft("f", at(2)))
	for _, e := range []*entry.Entry{f1, f2, f3} {
		require.NoError(t, s.SetFailedState(ctx, e.ID, at(10), "e"))
	}

	d2 := mustInsert(t, s, draft("d", at(2)))
	d1 := mustInsert(t, s, draft("d", at(1)))
	for _, e := range []*entry.Entry{d1, d2} {
		require.NoError(t, s.SetDeadState(ctx, e.ID, at(10), "e"))
	}

	ids := func(es []*entry.Entry) []int64 {
		out := make([]int64, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}

	enq, err := s.EnqueuedEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{e1.ID, e2.ID, e3.ID}, ids(enq))

	failed, err := s.FailedEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{f3.ID, f2.ID, f1.ID}, ids(failed))

	dead, err := s.DeadEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{d1.ID, d2.ID}, ids(dead))
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	a := mustInsert(t, s, draft("s", Epoch.Add(10*time.Minute))) // enqueued → hour bucket 1
	b := mustInsert(t, s, draft("s", Epoch.Add(70*time.Minute))) // enqueued → bucket 2
	require.NoError(t, s.SetProcessedState(ctx, a.ID, Epoch.Add(20*time.Minute)))
	require.NoError(t, s.SetFailedState(ctx, b.ID, Epoch.Add(3*time.Hour), "e"))
	mustInsert(t, s, draft("s", Epoch.Add(-time.Hour))) // out of range

	series, err := s.Stats(ctx, Epoch, Epoch.Add(4*time.Hour-time.Millisecond), stats.Hour)
	require.NoError(t, err)
	require.Len(t, series.Boundaries, 5)

	assert.Equal(t, []int{0, 1, 1, 0, 0}, series.For(entry.StateEnqueued))
	assert.Equal(t, []int{0, 1, 0, 0, 0}, series.For(entry.StateProcessed))
	assert.Equal(t, []int{0, 0, 0, 1, 0}, series.For(entry.StateFailed))
	assert.Equal(t, 0, series.Total(entry.StateDead))

	_, err = s.Stats(ctx, Epoch, Epoch.Add(time.Hour), stats.Granularity("decade"))
	require.ErrorIs(t, err, jobqueue.ErrUnknownGranularity)
}
