package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/jobqueue/entry"
)

// TimeoutFunc resolves the deadline for an entry. Zero means none.
type TimeoutFunc func(e *entry.Entry) time.Duration

// Timeout returns middleware that bounds each attempt by the duration
// resolve returns. When the deadline passes the context is cancelled and
// the performer is expected to return context.DeadlineExceeded.
func Timeout(logger *slog.Logger, resolve TimeoutFunc) Middleware {
	return func(ctx context.Context, e *entry.Entry, next Handler) error {
		d := resolve(e)
		if d <= 0 {
			return next(ctx)
		}

		logger.Debug("entry timeout set",
			slog.Int64("entry_id", e.ID),
			slog.Duration("timeout", d),
		)
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()
		return next(ctx)
	}
}
