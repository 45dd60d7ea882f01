package jobqueue

import "time"

// Lane is a named sub-queue and its dispatch weight.
type Lane struct {
	// Name identifies the lane. Entries are routed by this value.
	Name string

	// Weight is the number of consecutive dispatch opportunities the
	// lane receives per cycle. Values below 1 are treated as 1.
	Weight int
}

// DefaultLanes returns the lanes used when none are configured. The
// first lane is the default lane for jobs that do not name one.
func DefaultLanes() []Lane {
	return []Lane{
		{Name: "default", Weight: 1},
		{Name: "critical", Weight: 1},
		{Name: "high", Weight: 1},
		{Name: "low", Weight: 1},
	}
}

// DefaultMaxRetries is the retry ceiling applied to jobs that do not set
// their own.
const DefaultMaxRetries = 25

// Config holds configuration for the engine.
type Config struct {
	// Concurrency is the maximum number of handlers running at once.
	Concurrency int

	// Lanes is the ordered list of lanes. Order determines the position
	// of each lane in the weighted dispatch cycle.
	Lanes []Lane

	// DefaultMaxRetries is the retry ceiling for jobs without one.
	DefaultMaxRetries int

	// DispatchDelay postpones every dispatch attempt. Zero dispatches
	// immediately.
	DispatchDelay time.Duration

	// ShutdownTimeout bounds how long Stop waits for running handlers
	// when the caller's context carries no deadline.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		Lanes:             DefaultLanes(),
		DefaultMaxRetries: DefaultMaxRetries,
		ShutdownTimeout:   30 * time.Second,
	}
}

// DefaultLane returns the name of the first configured lane, or "" when
// no lanes are configured.
func (c Config) DefaultLane() string {
	if len(c.Lanes) == 0 {
		return ""
	}
	return c.Lanes[0].Name
}

// Validate reports configuration errors that would prevent the engine
// from starting.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if len(c.Lanes) == 0 {
		return ErrNoLanes
	}
	seen := make(map[string]struct{}, len(c.Lanes))
	for _, l := range c.Lanes {
		if _, ok := seen[l.Name]; ok {
			return &LaneError{Lane: l.Name, Err: ErrDuplicateLane}
		}
		seen[l.Name] = struct{}{}
	}
	return nil
}
