package engine

import (
	"context"
	"time"

	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/job"
)

// Job is a handle for enqueuing a defined job into one lane.
type Job struct {
	eng *Engine
	def *job.Definition
}

// Name returns the job name.
func (j *Job) Name() string { return j.def.Name }

// Lane returns the lane this handle enqueues to.
func (j *Job) Lane() string { return j.def.Opts.Lane }

// Definition returns the definition behind the handle.
func (j *Job) Definition() *job.Definition { return j.def }

// In returns a handle that enqueues the same job into lane. The performer
// and retry policy are shared. An unknown lane is reported when enqueuing.
func (j *Job) In(lane string) *Job {
	return &Job{eng: j.eng, def: j.def.WithLane(lane)}
}

// PerformAsync enqueues an invocation to run as soon as a slot is free.
// Args are encoded as JSON and passed to the performer positionally.
func (j *Job) PerformAsync(ctx context.Context, args ...any) (*entry.Entry, error) {
	return j.eng.enqueue(ctx, j.def, time.Time{}, args)
}

// PerformAt enqueues an invocation that runs no earlier than at.
func (j *Job) PerformAt(ctx context.Context, at time.Time, args ...any) (*entry.Entry, error) {
	return j.eng.enqueue(ctx, j.def, at, args)
}

// PerformIn enqueues an invocation that runs no earlier than d from now.
func (j *Job) PerformIn(ctx context.Context, d time.Duration, args ...any) (*entry.Entry, error) {
	return j.eng.enqueue(ctx, j.def, j.eng.clock.Now().Add(d), args)
}
