package job

import "time"

// UseDefaultRetries marks a definition that inherits the engine's retry
// ceiling.
const UseDefaultRetries = -1

// Options configures per-job behavior such as lane and retry ceiling.
type Options struct {
	// Lane is the lane invocations are enqueued to. Empty means the
	// engine's default lane.
	Lane string

	// MaxRetries is the number of automatic retries before an entry is
	// dead-lettered. UseDefaultRetries defers to the engine; zero
	// disables retries.
	MaxRetries int

	// Timeout bounds a single attempt. Zero means no deadline.
	Timeout time.Duration
}

// DefaultOptions returns Options that inherit all engine defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries: UseDefaultRetries,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithLane sets the lane the job is enqueued to.
func WithLane(lane string) Option {
	return func(o *Options) {
		o.Lane = lane
	}
}

// WithMaxRetries sets the retry ceiling. Negative values restore the
// engine default.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n < 0 {
			n = UseDefaultRetries
		}
		o.MaxRetries = n
	}
}

// WithoutRetry dead-letters the job on its first failure.
func WithoutRetry() Option {
	return func(o *Options) {
		o.MaxRetries = 0
	}
}

// WithTimeout sets the maximum execution duration for one attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}
