package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue/entry"
	"github.com/xraph/jobqueue/ext"
)

// Compile-time interface checks.
var (
	_ ext.Extension      = (*Broker)(nil)
	_ ext.EntryEnqueued  = (*Broker)(nil)
	_ ext.EntryStarted   = (*Broker)(nil)
	_ ext.EntryProcessed = (*Broker)(nil)
	_ ext.EntryFailed    = (*Broker)(nil)
	_ ext.EntryDead      = (*Broker)(nil)
	_ ext.EntryRetried   = (*Broker)(nil)
	_ ext.Shutdown       = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the ext.Extension
// interface to receive lifecycle events and fans them out to subscribers
// via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger
	clock  clockwork.Clock

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// WithClock sets the clock used to timestamp events.
func WithClock(c clockwork.Clock) BrokerOption {
	return func(b *Broker) { b.clock = c }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		clock:          clockwork.NewRealClock(),
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	return b.SubscribeFiltered(subscriberID, nil, topics...)
}

// SubscribeFiltered is Subscribe with filter installed before the
// subscriber joins any topic.
func (b *Broker) SubscribeFiltered(subscriberID string, filter Filter, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	sub.SetFilter(filter)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish fans evt out to every topic it belongs to.
func (b *Broker) publish(evt *Event) {
	sent, lost := b.topics.Broadcast(topicsFor(evt), evt)
	b.totalPublished.Add(int64(sent))
	if lost > 0 {
		b.totalDropped.Add(int64(lost))
		b.logger.Debug("stream: events dropped",
			slog.String("type", string(evt.Type)),
			slog.String("topic", evt.Topic),
			slog.Int("subscribers", lost),
		)
	}
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// entryEvent builds the event envelope for e.
func (b *Broker) entryEvent(typ EventType, e *entry.Entry, data EntryEventData) *Event {
	data.EntryID = e.ID
	data.JobName = e.Name
	data.Lane = e.Lane
	data.Retries = e.Retries
	return &Event{
		Type:      typ,
		Timestamp: b.clock.Now().UTC(),
		Topic:     EntryTopic(e.ID),
		Lane:      e.Lane,
		Data:      mustMarshal(data),
	}
}

// ── Entry lifecycle hooks ───────────────────────────

func (b *Broker) OnEntryEnqueued(_ context.Context, e *entry.Entry) error {
	b.publish(b.entryEvent(EventEntryEnqueued, e, EntryEventData{}))
	return nil
}

func (b *Broker) OnEntryStarted(_ context.Context, e *entry.Entry) error {
	b.publish(b.entryEvent(EventEntryStarted, e, EntryEventData{}))
	return nil
}

func (b *Broker) OnEntryProcessed(_ context.Context, e *entry.Entry, elapsed time.Duration) error {
	b.publish(b.entryEvent(EventEntryProcessed, e, EntryEventData{
		ElapsedMs: elapsed.Milliseconds(),
	}))
	return nil
}

func (b *Broker) OnEntryFailed(_ context.Context, e *entry.Entry, entryErr error, nextRunAt time.Time) error {
	b.publish(b.entryEvent(EventEntryFailed, e, EntryEventData{
		Error:     entryErr.Error(),
		NextRunAt: nextRunAt.UTC().Format(time.RFC3339Nano),
	}))
	return nil
}

func (b *Broker) OnEntryDead(_ context.Context, e *entry.Entry, entryErr error) error {
	b.publish(b.entryEvent(EventEntryDead, e, EntryEventData{
		Error: entryErr.Error(),
	}))
	return nil
}

func (b *Broker) OnEntryRetried(_ context.Context, original, replacement *entry.Entry) error {
	b.publish(b.entryEvent(EventEntryRetried, original, EntryEventData{
		ReplacementID: replacement.ID,
	}))
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		b.topics.UnsubscribeAll(sub.ID())
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
