// Package api serves the jobqueue admin HTTP API on gin: counts, entry
// lists, manual retries, stats and a websocket feed of lifecycle events.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/xraph/jobqueue"
	"github.com/xraph/jobqueue/cron"
	"github.com/xraph/jobqueue/engine"
	"github.com/xraph/jobqueue/stream"
)

// Option configures the API.
type Option func(*API)

// WithLogger sets the logger used for request and feed logging.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithBroker enables GET /api/events backed by the given stream broker.
// The broker must also be registered as an engine extension.
func WithBroker(b *stream.Broker) Option {
	return func(a *API) { a.broker = b }
}

// WithCron enables GET /api/cron listing the recurring entries of s.
func WithCron(s *cron.Scheduler) Option {
	return func(a *API) { a.cron = s }
}

// WithBasePath mounts every route under prefix, e.g. "/admin/queue".
func WithBasePath(prefix string) Option {
	return func(a *API) { a.basePath = strings.TrimRight(prefix, "/") }
}

// WithCheckOrigin overrides the websocket origin check. By default only
// same-origin upgrades are accepted.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(a *API) { a.upgrader.CheckOrigin = fn }
}

// API wires the admin handlers to an Engine.
type API struct {
	eng      *engine.Engine
	broker   *stream.Broker
	cron     *cron.Scheduler
	logger   *slog.Logger
	basePath string
	upgrader websocket.Upgrader
}

// New creates an API for eng.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{
		eng:    eng,
		logger: slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with every route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.logRequests())
	a.Register(r)
	return r
}

// Register adds the API routes to an existing gin router.
func (a *API) Register(r gin.IRouter) {
	g := r.Group(a.basePath + "/api")

	g.GET("/counts", a.counts)
	g.GET("/lanes", a.lanes)
	g.GET("/stats", a.stats)

	g.GET("/jobs/enqueued", a.enqueued)
	g.GET("/jobs/failed", a.failed)
	g.GET("/jobs/dead", a.dead)
	g.GET("/jobs/:id", a.getEntry)
	g.POST("/jobs/:id/retry-async", a.retryAsync)
	g.POST("/jobs/:id/retry-at", a.retryAt)
	g.POST("/jobs/:id/retry-in", a.retryIn)

	if a.broker != nil {
		g.GET("/events", a.events)
	}
	if a.cron != nil {
		g.GET("/cron", a.cronEntries)
	}
}

func (a *API) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Debug("api request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

// ──────────────────────────────────────────────────
// Errors
// ──────────────────────────────────────────────────

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure and carries its message.
type ErrorDetail struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// badRequest marks caller input that failed validation.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalid(msg string) error { return &badRequest{msg: msg} }

// status maps err to an HTTP status and a short error name.
func status(err error) (int, string) {
	var br *badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, "BadRequest"
	case errors.Is(err, jobqueue.ErrEntryNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, jobqueue.ErrUnknownGranularity),
		errors.Is(err, jobqueue.ErrUnknownLane),
		errors.Is(err, jobqueue.ErrEntryNotRetryable):
		return http.StatusBadRequest, "BadRequest"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

func (a *API) fail(c *gin.Context, err error) {
	code, name := status(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("api request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.AbortWithStatusJSON(code, ErrorResponse{Error: ErrorDetail{Name: name, Message: err.Error()}})
}
