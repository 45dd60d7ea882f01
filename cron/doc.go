// Package cron enqueues jobs on a recurring schedule.
//
// A [Scheduler] holds named entries, each pairing a cron expression with
// a job handle and fixed arguments. On every tick it enqueues the entries
// that are due and computes their next run. Entries live in memory: the
// enqueued attempts are persisted by the engine, the schedule itself is
// re-registered at startup.
//
//	sched := cron.NewScheduler(cron.WithLogger(logger))
//	_ = sched.Add("nightly-report", "0 2 * * *", reportJob, "pdf")
//	_ = sched.Start(ctx)
//	defer sched.Stop(ctx)
//
// Expressions use the standard five fields or descriptors such as
// "@hourly" and "@every 30s".
package cron
