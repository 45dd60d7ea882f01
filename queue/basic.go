package queue

// compactThreshold is the number of consumed slots after which Basic
// reclaims the front of its backing slice.
const compactThreshold = 64

// Basic is a FIFO queue for a single lane.
type Basic[T any] struct {
	items []T
	head  int
}

var _ Queue[int] = (*Basic[int])(nil)

// NewBasic creates an empty FIFO queue.
func NewBasic[T any]() *Basic[T] {
	return &Basic[T]{}
}

// Enqueue appends item to the back of the queue. It never fails.
func (q *Basic[T]) Enqueue(item T) error {
	q.items = append(q.items, item)
	return nil
}

// Dequeue removes and returns the front item.
func (q *Basic[T]) Dequeue() (T, bool) {
	var zero T
	if q.head >= len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

// Peek returns the front item without removing it.
func (q *Basic[T]) Peek() (T, bool) {
	if q.head >= len(q.items) {
		var zero T
		return zero, false
	}
	return q.items[q.head], true
}

// Size returns the number of buffered items.
func (q *Basic[T]) Size() int {
	return len(q.items) - q.head
}
