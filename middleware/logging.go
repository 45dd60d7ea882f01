package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/entry"
)

// Logging returns middleware that logs each attempt's start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, e *entry.Entry, next Handler) error {
		logger.Debug("entry started",
			slog.Int64("entry_id", e.ID),
			slog.String("job_name", e.Name),
			slog.String("lane", e.Lane),
			slog.Int("retries", e.Retries),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("entry failed",
				slog.Int64("entry_id", e.ID),
				slog.String("job_name", e.Name),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("entry processed",
				slog.Int64("entry_id", e.ID),
				slog.String("job_name", e.Name),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
