package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobqueue/entry"
)

// instrumentationName is the OTel scope for tracing and metrics.
const instrumentationName = "github.com/xraph/jobqueue"

// Tracing returns middleware that wraps each attempt in a span from the
// global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(instrumentationName))
}

// TracingWithTracer returns tracing middleware using tracer.
//
// Span attributes: jobqueue.entry.id, jobqueue.job.name, jobqueue.lane,
// jobqueue.retries. On error the span status is codes.Error.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, e *entry.Entry, next Handler) error {
		ctx, span := tracer.Start(ctx, "jobqueue.entry.perform",
			trace.WithAttributes(
				attribute.Int64("jobqueue.entry.id", e.ID),
				attribute.String("jobqueue.job.name", e.Name),
				attribute.String("jobqueue.lane", e.Lane),
				attribute.Int("jobqueue.retries", e.Retries),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return err
	}
}
