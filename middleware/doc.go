// Package middleware provides composable middleware for entry execution.
//
// A [Middleware] wraps the call into a job's performer. Middleware are
// composed with [Chain]; the first middleware in the list is the outermost
// wrapper.
//
//	// recover → logging → handler
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover] converts performer panics into a *[PanicError]
//   - [Tracing] wraps each attempt in an OpenTelemetry span
//   - [Metrics] records attempt duration and outcome counters
//   - [Logging] logs entry id, job name and outcome
//   - [RateLimit] throttles attempts per lane with a token bucket
//   - [Timeout] bounds an attempt by the job's configured timeout
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, e *entry.Entry, next middleware.Handler) error {
//	        err := next(ctx)
//	        return err
//	    }
//	}
//
// Middleware must call next unless intentionally short-circuiting. An
// error returned from the chain fails the attempt like a performer error.
package middleware
