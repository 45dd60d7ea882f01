// Package observability provides an OpenTelemetry metrics extension for
// the job engine. The MetricsExtension implements lifecycle hooks to
// record engine-wide counters for enqueued, started, processed, failed,
// dead and manually retried entries.
//
// For per-attempt tracing and duration histograms, see the middleware
// package: middleware.Tracing() and middleware.Metrics().
package observability
