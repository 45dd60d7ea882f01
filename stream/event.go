// Package stream provides a real-time event broker for entry lifecycle
// events. It bridges the ext.Extension system to connected clients via
// topic-based pub/sub.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventEntryEnqueued  EventType = "entry.enqueued"
	EventEntryStarted   EventType = "entry.started"
	EventEntryProcessed EventType = "entry.processed"
	EventEntryFailed    EventType = "entry.failed"
	EventEntryDead      EventType = "entry.dead"
	EventEntryRetried   EventType = "entry.retried"
)

// Valid reports whether t is one of the entry lifecycle types.
func (t EventType) Valid() bool {
	switch t {
	case EventEntryEnqueued, EventEntryStarted, EventEntryProcessed,
		EventEntryFailed, EventEntryDead, EventEntryRetried:
		return true
	}
	return false
}

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type" msgpack:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts" msgpack:"ts"`

	// Topic is the entity channel this event was published on.
	Topic string `json:"topic" msgpack:"topic"`

	// Lane is the lane of the entry, used to route to lane topics.
	Lane string `json:"lane,omitempty" msgpack:"lane,omitempty"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data" msgpack:"data"`
}

// EntryEventData is the payload for entry lifecycle events.
type EntryEventData struct {
	EntryID       int64  `json:"entry_id"`
	JobName       string `json:"job_name"`
	Lane          string `json:"lane"`
	Retries       int    `json:"retries"`
	ElapsedMs     int64  `json:"elapsed_ms,omitempty"`
	Error         string `json:"error,omitempty"`
	NextRunAt     string `json:"next_run_at,omitempty"`
	ReplacementID int64  `json:"replacement_id,omitempty"`
}
