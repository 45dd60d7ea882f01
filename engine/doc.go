// Package engine is the job orchestrator. It owns the job registry, the
// weighted lane queue, the concurrent scheduler and the delayed-entry
// queue, and drives every entry through its persisted state machine.
//
// # Building an Engine
//
//	eng, err := engine.New(pgStore,
//	    engine.WithConcurrency(20),
//	    engine.WithLanes(
//	        jobqueue.Lane{Name: "default", Weight: 1},
//	        jobqueue.Lane{Name: "critical", Weight: 5},
//	    ),
//	    engine.WithExtension(broker),
//	    engine.WithLaneRateLimit("default", 50, 10),
//	)
//
// # Defining Jobs
//
//	sendEmail, err := eng.Define(job.NewDefinition("send-email",
//	    job.Func2(func(ctx context.Context, to, subject string) error { ... }),
//	    job.WithMaxRetries(5),
//	))
//
// # Starting
//
// Start recovers entries left Enqueued by a previous process and begins
// dispatching. Entries enqueued before Start are persisted and picked up
// by that recovery pass.
//
//	if err := eng.Start(ctx); err != nil { ... }
//
// # Enqueuing
//
//	sendEmail.PerformAsync(ctx, "user@example.com", "hi")
//	sendEmail.PerformIn(ctx, 5*time.Minute, "user@example.com", "later")
//	sendEmail.In("critical").PerformAt(ctx, at, "ops@example.com", "page")
//
// # Entry States
//
// A successful attempt moves an entry to Processed. A failed attempt
// moves it to Failed and inserts a new entry with retries+1 that runs
// after the backoff delay. Once retries reaches the job's ceiling the
// failed attempt moves to Dead instead. RetryAsync, RetryAt and RetryIn
// move a finished entry to Retried and insert a fresh attempt.
package engine
