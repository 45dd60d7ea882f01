// Package queue provides the in-memory buffers that feed the scheduler.
//
// [Basic] is a FIFO for a single lane. [Weighted] fans several named lanes
// into one dequeue stream using a weighted round-robin cycle:
//
//	q, err := queue.NewWeighted([]jobqueue.Lane{
//	    {Name: "a", Weight: 1},
//	    {Name: "b", Weight: 2},
//	    {Name: "c", Weight: 3},
//	}, func(e *entry.Entry) string { return e.Lane })
//
// builds the cycle [a b b c c c]. A single cursor walks the cycle across
// Dequeue calls and advances one slot per inspected lane, so over one full
// cycle lane c is offered three consecutive dequeue chances.
//
// Neither type is safe for concurrent use. The scheduler serializes
// access under its own mutex.
package queue

// Queue is the buffer contract consumed by the scheduler.
type Queue[T any] interface {
	// Enqueue buffers item. Implementations may reject items they
	// cannot route.
	Enqueue(item T) error

	// Dequeue removes and returns the next item. The boolean is false
	// when nothing is buffered.
	Dequeue() (T, bool)

	// Size returns the number of buffered items.
	Size() int
}
