// Package scheduler runs buffered items with a hard concurrency ceiling.
//
// A [Scheduler] wraps any [queue.Queue]. Every Add and every completed
// run makes an independent dispatch attempt: if fewer than the ceiling
// are running and the queue is not empty, one item is dequeued and run on
// its own goroutine. The running counter and the dequeue are guarded by
// one mutex, so the number of concurrent runs never exceeds the ceiling.
//
// After a run the worker goroutine loops to pull the next item instead of
// spawning a new dispatch, which keeps stack depth constant however long
// the queue is:
//
//	acquire slot → dequeue → run → onSuccess | onError → release → acquire next
//
// Failures in onError are logged and swallowed; they never stop the pump.
package scheduler
