// Command jobqueue runs a job engine with the admin API and a live event
// feed. Configuration comes from JOBQUEUE_* environment variables.
//
// Usage:
//
//	JOBQUEUE_DRIVER=sqlite JOBQUEUE_DSN=file:jobs.db go run ./cmd/jobqueue
//
// Then in another terminal:
//
//	curl http://localhost:8080/api/counts
//	curl http://localhost:8080/api/jobs/failed
//	curl -X POST http://localhost:8080/api/jobs/1/retry-async
//	curl 'http://localhost:8080/api/stats?granularity=minute'
//	websocat 'ws://localhost:8080/api/events?topic=entries'
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/api"
	audithook "github.com/xraph/jobqueue/audit_hook"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/engine"
	"github.com/xraph/jobqueue/stream"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "jobqueue:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := cfg.logger()
	if err != nil {
		return err
	}
	lanes, err := cfg.lanes()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──────────────────────────────────────────────────
	// 1. Persister and engine
	// ──────────────────────────────────────────────────

	s, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	broker := stream.NewBroker(logger)
	opts := []engine.Option{
		engine.WithConfig(jobqueue.Config{
			Concurrency:       cfg.Concurrency,
			Lanes:             lanes,
			DefaultMaxRetries: cfg.DefaultRetries,
			ShutdownTimeout:   cfg.ShutdownTimeout,
		}),
		engine.WithLogger(logger),
		engine.WithExtension(broker),
	}
	if cfg.Audit {
		auditLog := logger.With(slog.String("component", "audit"))
		opts = append(opts, engine.WithExtension(audithook.New(
			audithook.SlogRecorder(auditLog),
			audithook.WithMinSeverity(cfg.AuditSeverity),
			audithook.WithLogger(logger),
		)))
	}
	eng, err := engine.New(s, opts...)
	if err != nil {
		return errors.Join(err, closeStore(context.Background()))
	}

	// ──────────────────────────────────────────────────
	// 2. Jobs
	// ──────────────────────────────────────────────────

	sched := cron.NewScheduler(cron.WithLogger(logger))

	var demo *demoJobs
	if cfg.Demo {
		if demo, err = registerDemo(eng, logger); err != nil {
			return errors.Join(err, closeStore(context.Background()))
		}
		if cfg.DemoSchedule != "" {
			if err := demo.schedule(sched, cfg.DemoSchedule); err != nil {
				return errors.Join(err, closeStore(context.Background()))
			}
		}
	}

	if err := eng.Start(ctx); err != nil {
		return errors.Join(err, closeStore(context.Background()))
	}
	if err := sched.Start(ctx); err != nil {
		return errors.Join(err, eng.Stop(context.Background()), closeStore(context.Background()))
	}

	if demo != nil {
		if err := demo.enqueue(ctx); err != nil {
			logger.Error("demo enqueue failed", slog.String("error", err.Error()))
		}
	}

	// ──────────────────────────────────────────────────
	// 3. Admin API
	// ──────────────────────────────────────────────────

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: api.New(eng,
			api.WithLogger(logger),
			api.WithBroker(broker),
			api.WithCron(sched),
			api.WithBasePath(cfg.BasePath),
		).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("jobqueue listening",
			slog.String("addr", cfg.Listen),
			slog.String("driver", cfg.Driver),
			slog.String("engine_id", eng.ID()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Stopping the engine closes the event feeds, so it precedes the
		// server.
		return errors.Join(
			sched.Stop(shutdownCtx),
			eng.Stop(shutdownCtx),
			srv.Shutdown(shutdownCtx),
			closeStore(shutdownCtx),
		)
	})

	err = g.Wait()
	logger.Info("goodbye")
	return err
}
