// Package delay holds items until their fire time and hands them to a
// callback once due.
//
// A [Queue] keeps pending items in a min-heap keyed by fire time and runs
// one goroutine that sleeps until the earliest item is due. Scheduling an
// item earlier than the current head wakes the goroutine so it can re-arm
// its timer. Time is read from a [clockwork.Clock] so tests can drive it.
package delay

import (
	"container/heap"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// FireFunc receives items whose fire time has passed.
type FireFunc[T any] func(item T)

type task[T any] struct {
	at   time.Time
	seq  uint64
	item T
}

// taskHeap orders tasks by fire time, then insertion order.
type taskHeap[T any] []*task[T]

func (h taskHeap[T]) Len() int { return len(h) }
func (h taskHeap[T]) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap[T]) Push(x any)   { *h = append(*h, x.(*task[T])) } //nolint:errcheck // heap only stores *task
func (h *taskHeap[T]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Queue releases items to a FireFunc at their scheduled time.
type Queue[T any] struct {
	clock  clockwork.Clock
	fire   FireFunc[T]
	logger *slog.Logger

	mu      sync.Mutex
	tasks   taskHeap[T]
	seq     uint64
	running bool
	wake    chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
}

// Option configures a Queue.
type Option[T any] func(*Queue[T])

// WithClock sets the clock used to measure fire times.
func WithClock[T any](c clockwork.Clock) Option[T] {
	return func(q *Queue[T]) { q.clock = c }
}

// WithLogger sets the logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(q *Queue[T]) { q.logger = l }
}

// New creates a delay queue that calls fire for each due item.
func New[T any](fire FireFunc[T], opts ...Option[T]) *Queue[T] {
	q := &Queue[T]{
		clock:  clockwork.NewRealClock(),
		fire:   fire,
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the timer goroutine. Items scheduled before Start are
// held until it runs.
func (q *Queue[T]) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.done = make(chan struct{})
	go q.loop(q.stopCh, q.done)
}

// Stop halts the timer goroutine and waits for it to exit. Pending items
// are kept and fire after a later Start.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	stopCh, done := q.stopCh, q.done
	q.mu.Unlock()

	close(stopCh)
	<-done
}

// Schedule holds item until at.
func (q *Queue[T]) Schedule(at time.Time, item T) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.tasks, &task[T]{at: at, seq: q.seq, item: item})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of pending items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Next returns the earliest fire time, if any.
func (q *Queue[T]) Next() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return time.Time{}, false
	}
	return q.tasks[0].at, true
}

func (q *Queue[T]) loop(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		due, wait := q.popDue()
		for _, item := range due {
			q.fire(item)
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		var timer clockwork.Timer
		if wait >= 0 {
			timer = q.clock.NewTimer(wait)
			timerC = timer.Chan()
		}

		select {
		case <-stopCh:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-q.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// popDue removes every item due now. When none are due it returns how
// long to wait for the head, or -1 when the heap is empty.
func (q *Queue[T]) popDue() ([]T, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var due []T
	for len(q.tasks) > 0 && !q.tasks[0].at.After(now) {
		t := heap.Pop(&q.tasks).(*task[T]) //nolint:errcheck // heap only stores *task
		due = append(due, t.item)
	}
	if len(due) > 0 {
		return due, 0
	}
	if len(q.tasks) == 0 {
		return nil, -1
	}
	return nil, q.tasks[0].at.Sub(now)
}
