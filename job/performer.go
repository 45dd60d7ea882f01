package job

import (
	"context"

	"github.com/xraph/jobqueue/entry"
)

// Performer executes one attempt of a job with its positional arguments.
type Performer interface {
	Perform(ctx context.Context, args entry.Args) error
}

// PerformFunc adapts an ordinary function to the Performer interface.
type PerformFunc func(ctx context.Context, args entry.Args) error

// Perform calls f(ctx, args).
func (f PerformFunc) Perform(ctx context.Context, args entry.Args) error {
	return f(ctx, args)
}

// Func0 wraps a handler that takes no arguments. Any arguments on the
// entry are ignored.
func Func0(fn func(ctx context.Context) error) Performer {
	return PerformFunc(func(ctx context.Context, _ entry.Args) error {
		return fn(ctx)
	})
}

// Func1 wraps a handler taking one argument decoded from position 0.
func Func1[A any](fn func(ctx context.Context, a A) error) Performer {
	return PerformFunc(func(ctx context.Context, args entry.Args) error {
		var a A
		if err := args.Decode(0, &a); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

// Func2 wraps a handler taking two positional arguments.
func Func2[A, B any](fn func(ctx context.Context, a A, b B) error) Performer {
	return PerformFunc(func(ctx context.Context, args entry.Args) error {
		var (
			a A
			b B
		)
		if err := args.Decode(0, &a); err != nil {
			return err
		}
		if err := args.Decode(1, &b); err != nil {
			return err
		}
		return fn(ctx, a, b)
	})
}

// Func3 wraps a handler taking three positional arguments.
func Func3[A, B, C any](fn func(ctx context.Context, a A, b B, c C) error) Performer {
	return PerformFunc(func(ctx context.Context, args entry.Args) error {
		var (
			a A
			b B
			c C
		)
		if err := args.Decode(0, &a); err != nil {
			return err
		}
		if err := args.Decode(1, &b); err != nil {
			return err
		}
		if err := args.Decode(2, &c); err != nil {
			return err
		}
		return fn(ctx, a, b, c)
	})
}
