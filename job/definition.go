package job

import (
	"fmt"

	"github.com/xraph/jobqueue"
)

// Definition binds a job name to its performer and options.
type Definition struct {
	// Name is the unique identifier for this job type.
	Name string

	// Performer runs one attempt of the job.
	Performer Performer

	// Opts configures lane, retries, and timeout.
	Opts Options
}

// NewDefinition creates a job definition.
func NewDefinition(name string, p Performer, opts ...Option) *Definition {
	def := &Definition{
		Name:      name,
		Performer: p,
		Opts:      DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// Validate reports whether the definition can be registered.
func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: nil definition", jobqueue.ErrInvalidJob)
	}
	if d.Name == "" {
		return fmt.Errorf("%w: empty name", jobqueue.ErrInvalidJob)
	}
	if d.Performer == nil {
		return fmt.Errorf("%w: %q has no performer", jobqueue.ErrInvalidJob, d.Name)
	}
	return nil
}

// RetryCeiling returns the definition's retry ceiling, or fallback when
// it inherits the engine default.
func (d *Definition) RetryCeiling(fallback int) int {
	if d.Opts.MaxRetries < 0 {
		return fallback
	}
	return d.Opts.MaxRetries
}

// WithLane returns a copy of the definition targeting lane. Performer and
// retry policy are shared.
func (d *Definition) WithLane(lane string) *Definition {
	cp := *d
	cp.Opts.Lane = lane
	return &cp
}
