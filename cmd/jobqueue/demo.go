package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/engine"
	"github.com/xraph/jobqueue/job"
)

// demoJobs is the sample job set served when JOBQUEUE_DEMO is on.
type demoJobs struct {
	sendEmail   *engine.Job
	resizeImage *engine.Job
	flaky       *engine.Job
}

func registerDemo(eng *engine.Engine, logger *slog.Logger) (*demoJobs, error) {
	var (
		d   demoJobs
		err error
	)

	d.sendEmail, err = eng.Define(job.NewDefinition("send-email",
		job.Func2(func(ctx context.Context, to, subject string) error {
			logger.Info("sending email", slog.String("to", to), slog.String("subject", subject))
			return sleep(ctx, 100*time.Millisecond)
		}),
	))
	if err != nil {
		return nil, err
	}

	d.resizeImage, err = eng.Define(job.NewDefinition("resize-image",
		job.Func3(func(ctx context.Context, url string, width, height int) error {
			logger.Info("resizing image",
				slog.String("url", url),
				slog.Int("width", width),
				slog.Int("height", height),
			)
			return sleep(ctx, 250*time.Millisecond)
		}),
		job.WithTimeout(5*time.Second),
	))
	if err != nil {
		return nil, err
	}

	d.flaky, err = eng.Define(job.NewDefinition("flaky",
		job.Func1(func(_ context.Context, failRate float64) error {
			if rand.Float64() < failRate {
				return errors.New("flaky: simulated failure")
			}
			return nil
		}),
		job.WithMaxRetries(3),
	))
	if err != nil {
		return nil, err
	}

	return &d, nil
}

// enqueue submits one batch of sample work.
func (d *demoJobs) enqueue(ctx context.Context) error {
	for i := range 3 {
		to := fmt.Sprintf("user%d@example.com", i+1)
		if _, err := d.sendEmail.PerformAsync(ctx, to, "Welcome!"); err != nil {
			return err
		}
	}
	if _, err := d.resizeImage.PerformIn(ctx, 10*time.Second, "https://example.com/cat.png", 640, 480); err != nil {
		return err
	}
	for range 5 {
		if _, err := d.flaky.PerformAsync(ctx, 0.5); err != nil {
			return err
		}
	}
	return nil
}

// schedule registers the recurring demo entries on sched.
func (d *demoJobs) schedule(sched *cron.Scheduler, expr string) error {
	if err := sched.Add("digest-email", expr, d.sendEmail, "digest@example.com", "Your digest"); err != nil {
		return err
	}
	return sched.Add("flaky-probe", expr, d.flaky, 0.3)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
