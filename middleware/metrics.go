package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobqueue/entry"
)

// Metrics returns middleware that records attempt metrics with the
// global MeterProvider.
//
// Instruments:
//   - jobqueue.entry.duration (Float64Histogram, seconds)
//   - jobqueue.entry.attempts (Int64Counter)
//   - jobqueue.entry.queue_delay (Float64Histogram, seconds from run_at to
//     the start of the attempt)
//
// Duration and attempts carry job_name, lane, retry (attempt is a retry)
// and status ("ok" or "error"). Queue delay carries job_name and lane.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(instrumentationName))
}

// MetricsWithMeter returns metrics middleware using meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API returns usable noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"jobqueue.entry.duration",
		metric.WithDescription("Duration of one job attempt in seconds"),
		metric.WithUnit("s"),
	)
	attempts, _ := meter.Int64Counter(
		"jobqueue.entry.attempts",
		metric.WithDescription("Total number of job attempts"),
		metric.WithUnit("{attempt}"),
	)
	queueDelay, _ := meter.Float64Histogram(
		"jobqueue.entry.queue_delay",
		metric.WithDescription("Time a due entry waited before its attempt started"),
		metric.WithUnit("s"),
	)

	return func(ctx context.Context, e *entry.Entry, next Handler) error {
		start := time.Now()
		where := []attribute.KeyValue{
			attribute.String("job_name", e.Name),
			attribute.String("lane", e.Lane),
		}
		if !e.RunAt.IsZero() {
			queueDelay.Record(ctx, max(start.Sub(e.RunAt).Seconds(), 0), metric.WithAttributes(where...))
		}

		err := next(ctx)

		status := "ok"
		if err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(append(where,
			attribute.Bool("retry", e.Retries > 0),
			attribute.String("status", status),
		)...)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		attempts.Add(ctx, 1, attrs)
		return err
	}
}
