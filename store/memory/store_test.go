package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/store"
	"github.com/xraph/jobqueue/store/storetest"
)

func TestConformance(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(_ *testing.T) store.Store { return New() })
}

func TestStateChangesLog(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClockAt(storetest.Epoch.Add(time.Hour))
	s := New(WithClock(clock))
	ctx := context.Background()

	e, err := s.Insert(ctx, &entry.Draft{Name: "x", Lane: "default", AddedAt: storetest.Epoch})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.SetDeadState(ctx, e.ID, storetest.Epoch.Add(time.Minute), "boom"); err != nil {
		t.Fatalf("SetDeadState: %v", err)
	}
	if err := s.SetRetriedState(ctx, e.ID); err != nil {
		t.Fatalf("SetRetriedState: %v", err)
	}

	log := s.StateChanges()
	want := []entry.StateChange{
		{EntryID: e.ID, State: entry.StateEnqueued, Timestamp: storetest.Epoch},
		{EntryID: e.ID, State: entry.StateDead, Timestamp: storetest.Epoch.Add(time.Minute)},
		{EntryID: e.ID, State: entry.StateRetried, Timestamp: storetest.Epoch.Add(time.Hour)},
	}
	if len(log) != len(want) {
		t.Fatalf("log = %+v, want %d changes", log, len(want))
	}
	for i := range want {
		if log[i].EntryID != want[i].EntryID || log[i].State != want[i].State || !log[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("log[%d] = %+v, want %+v", i, log[i], want[i])
		}
	}
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	e, _ := s.Insert(ctx, &entry.Draft{Name: "x", Lane: "default", AddedAt: storetest.Epoch})
	e.Name = "mutated"

	got, _ := s.Get(ctx, e.ID)
	if got.Name != "x" {
		t.Errorf("Name = %q, want x", got.Name)
	}
}

func TestConcurrentInserts(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Insert(ctx, &entry.Draft{Name: "x", Lane: "default", AddedAt: storetest.Epoch})
		}()
	}
	wg.Wait()

	if s.Len() != 50 {
		t.Fatalf("Len = %d, want 50", s.Len())
	}
	seen := make(map[int64]bool)
	for _, e := range mustList(t, s) {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
	}
}

func mustList(t *testing.T, s *Store) []*entry.Entry {
	t.Helper()
	es, err := s.EnqueuedEntries(context.Background())
	if err != nil {
		t.Fatalf("EnqueuedEntries: %v", err)
	}
	return es
}

func TestClosedStore(t *testing.T) {
	t.Parallel()
	s := New()
	ctx := context.Background()

	e, err := s.Insert(ctx, &entry.Draft{Name: "x", Lane: "default", AddedAt: storetest.Epoch})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Ping(ctx); !errors.Is(err, jobqueue.ErrStoreClosed) {
		t.Errorf("Ping err = %v, want ErrStoreClosed", err)
	}
	if _, err := s.Get(ctx, e.ID); !errors.Is(err, jobqueue.ErrStoreClosed) {
		t.Errorf("Get err = %v, want ErrStoreClosed", err)
	}
	if _, err := s.Insert(ctx, &entry.Draft{Name: "y", Lane: "default"}); !errors.Is(err, jobqueue.ErrStoreClosed) {
		t.Errorf("Insert err = %v, want ErrStoreClosed", err)
	}
	if err := s.SetProcessedState(ctx, e.ID, storetest.Epoch); !errors.Is(err, jobqueue.ErrStoreClosed) {
		t.Errorf("SetProcessedState err = %v, want ErrStoreClosed", err)
	}
	if _, err := s.DeadEntries(ctx); !errors.Is(err, jobqueue.ErrStoreClosed) {
		t.Errorf("DeadEntries err = %v, want ErrStoreClosed", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}
