// Package entry defines the persisted unit of work and its state machine.
//
// An Entry is one attempt of a job invocation. Entries are created in the
// Enqueued state and move exactly once to a terminal state for the
// attempt:
//
//	Enqueued ──► Processed
//	    │
//	    ├──────► Failed   (a new Enqueued entry with Retries+1 follows)
//	    │
//	    └──────► Dead     (retry ceiling reached)
//
//	Failed / Dead / Processed ──► Retried  (manual retry, new entry with Retries=0)
//
// Every transition is recorded as a StateChange by the persister. The
// numeric State values are part of the storage format.
package entry
