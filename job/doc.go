// Package job defines job definitions and the name-keyed registry the
// engine dispatches through.
//
// # Defining a Job
//
// A [Definition] binds a name to a [Performer]. The performer receives the
// entry's positional arguments as JSON values; the typed adapters decode
// them for you:
//
//	var SendEmail = job.NewDefinition("send-email",
//	    job.Func2(func(ctx context.Context, to string, in EmailInput) error {
//	        return mailer.Send(ctx, to, in.Subject, in.Body)
//	    }),
//	    job.WithLane("critical"),
//	    job.WithMaxRetries(5),
//	)
//
// Options of note:
//   - Lane: target lane (default: the engine's first lane)
//   - MaxRetries: retry ceiling (default: the engine's ceiling, see
//     [WithoutRetry] to dead-letter on the first failure)
//   - Timeout: per-attempt execution deadline (zero = unlimited)
//
// # Registry
//
// [Registry] maps job names to definitions. Dispatch to a name that is not
// registered is a handler failure, not a crash.
package job
