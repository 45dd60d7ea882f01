package cron

import (
	"context"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/jobqueue/entry"
)

// Enqueuer submits one attempt of a job. *engine.Job satisfies it.
type Enqueuer interface {
	Name() string
	PerformAsync(ctx context.Context, args ...any) (*entry.Entry, error)
}

// Entry is a recurring enqueue.
type Entry struct {
	Name        string     `json:"name"`
	Schedule    string     `json:"schedule"`
	JobName     string     `json:"job_name"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastEntryID int64      `json:"last_entry_id,omitempty"`
	NextRunAt   time.Time  `json:"next_run_at"`

	job      Enqueuer
	args     []any
	schedule cronlib.Schedule
}

func (e *Entry) clone() Entry {
	cp := *e
	if e.LastRunAt != nil {
		t := *e.LastRunAt
		cp.LastRunAt = &t
	}
	return cp
}
