package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*MetricsExtension)(nil)
	_ ext.EntryEnqueued  = (*MetricsExtension)(nil)
	_ ext.EntryStarted   = (*MetricsExtension)(nil)
	_ ext.EntryProcessed = (*MetricsExtension)(nil)
	_ ext.EntryFailed    = (*MetricsExtension)(nil)
	_ ext.EntryDead      = (*MetricsExtension)(nil)
	_ ext.EntryRetried   = (*MetricsExtension)(nil)
)

const instrumentationName = "github.com/xraph/jobqueue/observability"

// MetricsExtension records engine-wide lifecycle counters. Every counter
// carries job_name and lane attributes.
type MetricsExtension struct {
	Enqueued  metric.Int64Counter
	Started   metric.Int64Counter
	Processed metric.Int64Counter
	Failed    metric.Int64Counter
	Dead      metric.Int64Counter
	Retried   metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(instrumentationName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// Instruments are usable noops when err != nil.
		c, _ := meter.Int64Counter(name,
			metric.WithDescription(desc),
			metric.WithUnit("{entry}"),
		)
		return c
	}
	return &MetricsExtension{
		Enqueued:  counter("jobqueue.entries.enqueued", "Entries persisted and scheduled"),
		Started:   counter("jobqueue.entries.started", "Attempts started"),
		Processed: counter("jobqueue.entries.processed", "Attempts that succeeded"),
		Failed:    counter("jobqueue.entries.failed", "Attempts that failed and were rescheduled"),
		Dead:      counter("jobqueue.entries.dead", "Entries that exhausted their retries"),
		Retried:   counter("jobqueue.entries.retried", "Entries retried manually"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func entryAttrs(e *entry.Entry) metric.AddOption {
	return metric.WithAttributes(
		attribute.String("job_name", e.Name),
		attribute.String("lane", e.Lane),
	)
}

// ── Entry lifecycle hooks ───────────────────────────

// OnEntryEnqueued implements ext.EntryEnqueued.
func (m *MetricsExtension) OnEntryEnqueued(ctx context.Context, e *entry.Entry) error {
	m.Enqueued.Add(ctx, 1, entryAttrs(e))
	return nil
}

// OnEntryStarted implements ext.EntryStarted.
func (m *MetricsExtension) OnEntryStarted(ctx context.Context, e *entry.Entry) error {
	m.Started.Add(ctx, 1, entryAttrs(e))
	return nil
}

// OnEntryProcessed implements ext.EntryProcessed.
func (m *MetricsExtension) OnEntryProcessed(ctx context.Context, e *entry.Entry, _ time.Duration) error {
	m.Processed.Add(ctx, 1, entryAttrs(e))
	return nil
}

// OnEntryFailed implements ext.EntryFailed.
func (m *MetricsExtension) OnEntryFailed(ctx context.Context, e *entry.Entry, _ error, _ time.Time) error {
	m.Failed.Add(ctx, 1, entryAttrs(e))
	return nil
}

// OnEntryDead implements ext.EntryDead.
func (m *MetricsExtension) OnEntryDead(ctx context.Context, e *entry.Entry, _ error) error {
	m.Dead.Add(ctx, 1, entryAttrs(e))
	return nil
}

// OnEntryRetried implements ext.EntryRetried.
func (m *MetricsExtension) OnEntryRetried(ctx context.Context, _, replacement *entry.Entry) error {
	m.Retried.Add(ctx, 1, entryAttrs(replacement))
	return nil
}
