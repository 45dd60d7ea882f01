package audithook

import (
	"log/slog"
	"slices"
)

// Option configures an Extension.
type Option func(*Extension)

// WithActions records only the listed actions. Names outside AllActions
// never match.
func WithActions(actions ...string) Option {
	return func(e *Extension) {
		e.enabled = make(map[string]bool, len(actions))
		for _, a := range actions {
			e.enabled[a] = true
		}
	}
}

// WithMinSeverity drops events below sev. Severities rank info, warning,
// critical; an unknown value keeps everything.
func WithMinSeverity(sev string) Option {
	return func(e *Extension) { e.minRank = severityRank(sev) }
}

// WithLogger sets the logger used to report recorder failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

func severityRank(sev string) int {
	return max(slices.Index([]string{SeverityInfo, SeverityWarning, SeverityCritical}, sev), 0)
}
