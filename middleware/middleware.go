package middleware

import (
	"context"

	"github.com/xraph/jobqueue/entry"
)

// Handler is the terminal function that performs the job.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// entry being executed and the next handler. Middleware must call next
// unless it short-circuits with an error.
type Middleware func(ctx context.Context, e *entry.Entry, next Handler) error

// Chain composes middleware. The first middleware in the list is the
// outermost wrapper.
//
// Example: Chain(recover, logging, timeout) executes as:
//
//	recover → logging → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, e *entry.Entry, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			inner := h
			h = func(ctx context.Context) error {
				return mw(ctx, e, inner)
			}
		}
		return h(ctx)
	}
}
