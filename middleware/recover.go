package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/jobqueue/entry"
)

// PanicError is returned when a performer panics.
type PanicError struct {
	Job   string
	Value any
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", p.Job, p.Value)
}

// Recover returns middleware that converts panics into a *PanicError and
// logs the stack.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, e *entry.Entry, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("job performer panicked",
					slog.String("job_name", e.Name),
					slog.Int64("entry_id", e.ID),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = &PanicError{Job: e.Name, Value: r}
			}
		}()
		return next(ctx)
	}
}
