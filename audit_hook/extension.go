package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Extension)(nil)
	_ ext.EntryEnqueued  = (*Extension)(nil)
	_ ext.EntryStarted   = (*Extension)(nil)
	_ ext.EntryProcessed = (*Extension)(nil)
	_ ext.EntryFailed    = (*Extension)(nil)
	_ ext.EntryDead      = (*Extension)(nil)
	_ ext.EntryRetried   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail record.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// SlogRecorder returns a Recorder that logs each event on l. Critical
// events log at error level, warnings at warn, the rest at info.
func SlogRecorder(l *slog.Logger) Recorder {
	return RecorderFunc(func(ctx context.Context, evt *AuditEvent) error {
		level := slog.LevelInfo
		switch evt.Severity {
		case SeverityWarning:
			level = slog.LevelWarn
		case SeverityCritical:
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("action", evt.Action),
			slog.String("resource_id", evt.ResourceID),
			slog.String("outcome", evt.Outcome),
		}
		for k, v := range evt.Metadata {
			attrs = append(attrs, slog.Any(k, v))
		}
		l.LogAttrs(ctx, level, "audit", attrs...)
		return nil
	})
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges entry lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	minRank  int
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Entry lifecycle hooks ───────────────────────────

// OnEntryEnqueued implements ext.EntryEnqueued.
func (e *Extension) OnEntryEnqueued(ctx context.Context, en *entry.Entry) error {
	return e.record(ctx, ActionEntryEnqueued, SeverityInfo, OutcomeSuccess, en, nil,
		"run_at", en.RunAt,
	)
}

// OnEntryStarted implements ext.EntryStarted.
func (e *Extension) OnEntryStarted(ctx context.Context, en *entry.Entry) error {
	return e.record(ctx, ActionEntryStarted, SeverityInfo, OutcomeSuccess, en, nil)
}

// OnEntryProcessed implements ext.EntryProcessed.
func (e *Extension) OnEntryProcessed(ctx context.Context, en *entry.Entry, elapsed time.Duration) error {
	return e.record(ctx, ActionEntryProcessed, SeverityInfo, OutcomeSuccess, en, nil,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnEntryFailed implements ext.EntryFailed.
func (e *Extension) OnEntryFailed(ctx context.Context, en *entry.Entry, entryErr error, nextRunAt time.Time) error {
	return e.record(ctx, ActionEntryFailed, SeverityWarning, OutcomeFailure, en, entryErr,
		"next_run_at", nextRunAt,
	)
}

// OnEntryDead implements ext.EntryDead.
func (e *Extension) OnEntryDead(ctx context.Context, en *entry.Entry, entryErr error) error {
	return e.record(ctx, ActionEntryDead, SeverityCritical, OutcomeFailure, en, entryErr)
}

// OnEntryRetried implements ext.EntryRetried.
func (e *Extension) OnEntryRetried(ctx context.Context, original, replacement *entry.Entry) error {
	return e.record(ctx, ActionEntryRetried, SeverityWarning, OutcomeSuccess, original, nil,
		"replacement_id", replacement.ID,
		"run_at", replacement.RunAt,
	)
}

// record builds and emits an AuditEvent if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	en *entry.Entry,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}
	if severityRank(severity) < e.minRank {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+4)
	meta["job_name"] = en.Name
	meta["lane"] = en.Lane
	meta["retries"] = en.Retries
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	resourceID := strconv.FormatInt(en.ID, 10)
	evt := &AuditEvent{
		Action:     action,
		Resource:   ResourceEntry,
		Category:   CategoryEntry,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
