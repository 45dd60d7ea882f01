package jobqueue

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors.
	ErrNoLanes            = errors.New("jobqueue: at least one queue must be specified")
	ErrDuplicateLane      = errors.New("jobqueue: duplicate queue")
	ErrUnknownLane        = errors.New("jobqueue: queue not found")
	ErrUnknownGranularity = errors.New("jobqueue: unknown granularity")
	ErrInvalidConcurrency = errors.New("jobqueue: concurrency must be at least 1")
	ErrNoPersister        = errors.New("jobqueue: no persister configured")
	ErrInvalidJob         = errors.New("jobqueue: invalid job definition")

	// Lookup errors.
	ErrEntryNotFound = errors.New("jobqueue: entry not found")
	ErrUnknownJob    = errors.New("jobqueue: job not registered")

	// State errors.
	ErrEntryNotRetryable = errors.New("jobqueue: entry cannot be retried")

	// Lifecycle errors.
	ErrEngineStopped    = errors.New("jobqueue: engine stopped")
	ErrEngineStarted    = errors.New("jobqueue: engine already started")
	ErrSchedulerStopped = errors.New("jobqueue: scheduler stopped")
	ErrStoreClosed      = errors.New("jobqueue: store closed")
)

// LaneError reports a problem with a specific lane.
type LaneError struct {
	Lane string
	Err  error
}

func (e *LaneError) Error() string {
	if errors.Is(e.Err, ErrUnknownLane) {
		return fmt.Sprintf("jobqueue: queue named %q not found", e.Lane)
	}
	return fmt.Sprintf("%s: %q", e.Err, e.Lane)
}

func (e *LaneError) Unwrap() error { return e.Err }
