package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionEntryEnqueued  = "entry.enqueued"
	ActionEntryStarted   = "entry.started"
	ActionEntryProcessed = "entry.processed"
	ActionEntryFailed    = "entry.failed"
	ActionEntryDead      = "entry.dead"
	ActionEntryRetried   = "entry.retried"
)

// CategoryEntry groups entry lifecycle actions.
const CategoryEntry = "jobqueue.entry"

// ResourceEntry is the Resource field of every audit event.
const ResourceEntry = "entry"

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionEntryEnqueued,
		ActionEntryStarted,
		ActionEntryProcessed,
		ActionEntryFailed,
		ActionEntryDead,
		ActionEntryRetried,
	}
}
