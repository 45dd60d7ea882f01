package delay_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue/delay"
)

func collect(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for range n {
		select {
		case v := <-ch:
			out = append(out, v)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d items: %v", len(out), n, out)
		}
	}
	return out
}

func expectNothing(t *testing.T, ch <-chan string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected fire of %q", v)
	case <-time.After(30 * time.Millisecond):
	}
}

func blockUntilArmed(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("timer never armed: %v", err)
	}
}

func TestQueue_FiresInTimeOrder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan string, 10)
	q := delay.New(func(s string) { fired <- s }, delay.WithClock[string](clock))

	now := clock.Now()
	q.Schedule(now.Add(3*time.Second), "c")
	q.Schedule(now.Add(1*time.Second), "a")
	q.Schedule(now.Add(2*time.Second), "b")
	q.Start()
	defer q.Stop()

	blockUntilArmed(t, clock)
	expectNothing(t, fired)

	clock.Advance(time.Second)
	if got := collect(t, fired, 1); got[0] != "a" {
		t.Fatalf("fired %v, want a", got)
	}

	blockUntilArmed(t, clock)
	clock.Advance(2 * time.Second)
	got := collect(t, fired, 2)
	if got[0] != "b" || got[1] != "c" {
		t.Fatalf("fired %v, want [b c]", got)
	}
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestQueue_DueItemsFireImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan string, 2)
	q := delay.New(func(s string) { fired <- s }, delay.WithClock[string](clock))
	q.Start()
	defer q.Stop()

	q.Schedule(clock.Now().Add(-time.Minute), "past")
	q.Schedule(clock.Now(), "now")

	got := collect(t, fired, 2)
	if got[0] != "past" || got[1] != "now" {
		t.Fatalf("fired %v, want [past now]", got)
	}
}

func TestQueue_EarlierItemRearmsTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan string, 2)
	q := delay.New(func(s string) { fired <- s }, delay.WithClock[string](clock))
	q.Start()
	defer q.Stop()

	q.Schedule(clock.Now().Add(time.Hour), "late")
	blockUntilArmed(t, clock)

	q.Schedule(clock.Now().Add(time.Second), "early")
	// The loop wakes, stops the hour timer and arms a one-second timer.
	time.Sleep(20 * time.Millisecond)
	blockUntilArmed(t, clock)

	clock.Advance(time.Second)
	if got := collect(t, fired, 1); got[0] != "early" {
		t.Fatalf("fired %v, want early", got)
	}
	expectNothing(t, fired)

	next, ok := q.Next()
	if !ok || !next.Equal(clock.Now().Add(time.Hour-time.Second)) {
		t.Errorf("Next = %v, %v", next, ok)
	}
}

func TestQueue_StopKeepsPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fired := make(chan string, 1)
	q := delay.New(func(s string) { fired <- s }, delay.WithClock[string](clock))
	q.Start()

	q.Schedule(clock.Now().Add(time.Second), "kept")
	blockUntilArmed(t, clock)
	q.Stop()

	clock.Advance(time.Second)
	expectNothing(t, fired)
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}

	q.Start()
	defer q.Stop()
	if got := collect(t, fired, 1); got[0] != "kept" {
		t.Fatalf("fired %v, want kept", got)
	}
}
