// Package jobqueue provides an embeddable, persistent background-job
// engine for Go.
//
// Jobs are ordinary Go functions registered under a name. Invocations are
// persisted before they are scheduled, executed with bounded concurrency,
// retried with polynomial backoff, and dead-lettered once their retry
// ceiling is exhausted. Unfinished work is rebuilt from the store when the
// engine starts, so it survives a process restart.
//
// # Quick Start
//
//	st := memory.New()
//	eng, err := engine.New(st,
//	    engine.WithConcurrency(5),
//	    engine.WithLanes(jobqueue.Lane{Name: "default", Weight: 1},
//	        jobqueue.Lane{Name: "critical", Weight: 3}),
//	)
//
//	sendEmail, err := eng.Define(job.NewDefinition("send-email",
//	    job.Func1(func(ctx context.Context, to string) error {
//	        return mailer.Send(ctx, to)
//	    })))
//
//	if err := eng.Start(ctx); err != nil { ... }
//	sendEmail.PerformAsync(ctx, "user@example.com")
//	sendEmail.In("critical").PerformIn(ctx, time.Minute, "ops@example.com")
//
// # Architecture
//
// Every attempt is a separate persisted entry. A failed attempt keeps its
// row and a new entry with an incremented retry count is scheduled in its
// place, so the store holds a complete audit trail.
//
// Dispatch is weighted across named lanes: each lane appears in the
// dispatch cycle as many consecutive times as its weight, and within a
// lane entries run in FIFO order.
//
// Storage backends live under store/: memory, bun (SQLite and
// PostgreSQL), postgres (pgx), redis and mongo.
package jobqueue
