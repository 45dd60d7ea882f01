package queue

import (
	"github.com/xraph/jobqueue"
)

// LaneFunc extracts the lane name from an item.
type LaneFunc[T any] func(item T) string

// Weighted fans multiple named lanes into one dequeue stream. Each lane
// receives dequeue opportunities proportional to its weight while FIFO
// order is preserved within a lane.
type Weighted[T any] struct {
	lanes  map[string]*Basic[T]
	order  []jobqueue.Lane
	cycle  []string
	cursor int
	laneOf LaneFunc[T]
}

var _ Queue[int] = (*Weighted[int])(nil)

// NewWeighted builds a weighted queue over lanes. The order of lanes
// determines their position in the dispatch cycle. Each lane occupies
// max(1, weight) consecutive slots.
func NewWeighted[T any](lanes []jobqueue.Lane, laneOf LaneFunc[T]) (*Weighted[T], error) {
	if len(lanes) == 0 {
		return nil, jobqueue.ErrNoLanes
	}

	q := &Weighted[T]{
		lanes:  make(map[string]*Basic[T], len(lanes)),
		order:  make([]jobqueue.Lane, 0, len(lanes)),
		laneOf: laneOf,
	}
	for _, l := range lanes {
		if _, dup := q.lanes[l.Name]; dup {
			return nil, &jobqueue.LaneError{Lane: l.Name, Err: jobqueue.ErrDuplicateLane}
		}
		q.lanes[l.Name] = NewBasic[T]()
		q.order = append(q.order, l)

		weight := max(1, l.Weight)
		for range weight {
			q.cycle = append(q.cycle, l.Name)
		}
	}
	return q, nil
}

// Enqueue routes item to its lane. Items whose lane is not configured are
// rejected with an error wrapping [jobqueue.ErrUnknownLane].
func (q *Weighted[T]) Enqueue(item T) error {
	name := q.laneOf(item)
	lane, ok := q.lanes[name]
	if !ok {
		return &jobqueue.LaneError{Lane: name, Err: jobqueue.ErrUnknownLane}
	}
	return lane.Enqueue(item)
}

// Dequeue scans at most one full cycle starting at the cursor. The cursor
// advances one slot for every lane inspected, including the lane that
// yields the item.
func (q *Weighted[T]) Dequeue() (T, bool) {
	for range len(q.cycle) {
		lane := q.lanes[q.cycle[q.cursor]]
		q.cursor = (q.cursor + 1) % len(q.cycle)
		if item, ok := lane.Dequeue(); ok {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Size returns the total number of buffered items across all lanes.
func (q *Weighted[T]) Size() int {
	n := 0
	for _, lane := range q.lanes {
		n += lane.Size()
	}
	return n
}

// LaneSize returns the number of items buffered in the named lane.
func (q *Weighted[T]) LaneSize(name string) int {
	if lane, ok := q.lanes[name]; ok {
		return lane.Size()
	}
	return 0
}

// Lanes returns the configured lanes in cycle order.
func (q *Weighted[T]) Lanes() []jobqueue.Lane {
	out := make([]jobqueue.Lane, len(q.order))
	copy(out, q.order)
	return out
}

// Cycle returns a copy of the dispatch cycle.
func (q *Weighted[T]) Cycle() []string {
	out := make([]string, len(q.cycle))
	copy(out, q.cycle)
	return out
}
