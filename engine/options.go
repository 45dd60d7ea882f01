package engine

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/backoff"
	"github.com/xraph/jobqueue/ext"
	mw "github.com/xraph/jobqueue/middleware"
)

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the whole configuration. Options applied after it
// still override individual fields.
func WithConfig(cfg jobqueue.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLanes sets the ordered lanes and their weights. The first lane is
// the default lane.
func WithLanes(lanes ...jobqueue.Lane) Option {
	return func(eng *Engine) { eng.cfg.Lanes = lanes }
}

// WithConcurrency sets the maximum number of handlers running at once.
func WithConcurrency(n int) Option {
	return func(eng *Engine) { eng.cfg.Concurrency = n }
}

// WithDefaultRetry sets the retry ceiling for jobs that do not set one.
func WithDefaultRetry(n int) Option {
	return func(eng *Engine) { eng.cfg.DefaultMaxRetries = n }
}

// WithDispatchDelay postpones every dispatch attempt by d.
func WithDispatchDelay(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.DispatchDelay = d }
}

// WithShutdownTimeout bounds Stop when its context has no deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(eng *Engine) { eng.cfg.ShutdownTimeout = d }
}

// WithBackoff sets the retry backoff strategy. If not set,
// backoff.DefaultStrategy() is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithClock sets the clock used for timestamps and scheduled entries.
func WithClock(c clockwork.Clock) Option {
	return func(eng *Engine) { eng.clock = c }
}

// WithMiddleware adds middleware after the built-in stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.pendingExts = append(eng.pendingExts, e) }
}

// WithLaneRateLimit throttles attempts in lane to perSecond with the
// given burst.
func WithLaneRateLimit(lane string, perSecond float64, burst int) Option {
	return func(eng *Engine) {
		eng.limits = append(eng.limits, mw.LaneLimit{Lane: lane, PerSecond: perSecond, Burst: burst})
	}
}

// WithTracerProvider sets the OTel TracerProvider used by the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets the OTel MeterProvider used by the metrics
// middleware and the observability extension. If not set, the global
// provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}
