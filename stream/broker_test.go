package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/xraph/jobqueue/entry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBrokerSubscribeAndPublish(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-1", TopicEntries)

	evt := &Event{
		Type:      EventEntryEnqueued,
		Timestamp: time.Now().UTC(),
		Topic:     EntryTopic(123),
		Data:      json.RawMessage(`{"entry_id":123}`),
	}
	b.publish(evt)

	// Event should arrive on the subscriber channel.
	select {
	case received := <-sub.C():
		if received.Type != EventEntryEnqueued {
			t.Errorf("Type = %q, want %q", received.Type, EventEntryEnqueued)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerMultipleTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to firehose; should get everything.
	firehose := b.Subscribe("firehose-sub", TopicFirehose)

	// Subscribe to just entries.
	entriesSub := b.Subscribe("entries-sub", TopicEntries)

	// Publish an entry event.
	evt := &Event{
		Type:      EventEntryProcessed,
		Timestamp: time.Now().UTC(),
		Topic:     EntryTopic(456),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Both should receive the event.
	for _, sub := range []*Subscriber{firehose, entriesSub} {
		select {
		case <-sub.C():
			// ok
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s timed out", sub.ID())
		}
	}
}

func TestBrokerEntryTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	// Subscribe to a specific entry.
	sub := b.Subscribe("entry-sub", EntryTopic(42))

	evt := &Event{
		Type:      EventEntryStarted,
		Timestamp: time.Now().UTC(),
		Topic:     EntryTopic(42),
		Data:      json.RawMessage(`{"entry_id":42}`),
	}
	b.publish(evt)

	select {
	case received := <-sub.C():
		if received.Type != EventEntryStarted {
			t.Errorf("Type = %q, want %q", received.Type, EventEntryStarted)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for entry event")
	}

	// Publish event to a different entry; it must not arrive.
	evt2 := &Event{
		Type:      EventEntryStarted,
		Timestamp: time.Now().UTC(),
		Topic:     EntryTopic(43),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt2)

	select {
	case <-sub.C():
		t.Fatal("should not receive event for different entry")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerLaneTopics(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	critical := b.Subscribe("critical-sub", LaneTopic("critical"))

	_ = b.OnEntryEnqueued(context.Background(), &entry.Entry{ID: 1, Name: "a", Lane: "low"})
	_ = b.OnEntryEnqueued(context.Background(), &entry.Entry{ID: 2, Name: "b", Lane: "critical"})

	select {
	case received := <-critical.C():
		if received.Topic != EntryTopic(2) {
			t.Errorf("Topic = %q, want %q", received.Topic, EntryTopic(2))
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for lane event")
	}

	select {
	case evt := <-critical.C():
		t.Fatalf("unexpected second event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerHookPayloads(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	b := NewBroker(testLogger(), WithClock(clock))
	sub := b.Subscribe("payload-sub", TopicFirehose)

	ctx := context.Background()
	e := &entry.Entry{ID: 9, Name: "send-email", Lane: "default", Retries: 3}
	next := clock.Now().Add(time.Minute)

	_ = b.OnEntryProcessed(ctx, e, 1500*time.Millisecond)
	_ = b.OnEntryFailed(ctx, e, errors.New("smtp down"), next)
	_ = b.OnEntryDead(ctx, e, errors.New("smtp down"))
	_ = b.OnEntryRetried(ctx, e, &entry.Entry{ID: 10, Name: "send-email", Lane: "default"})

	want := []struct {
		typ  EventType
		data EntryEventData
	}{
		{EventEntryProcessed, EntryEventData{EntryID: 9, JobName: "send-email", Lane: "default", Retries: 3, ElapsedMs: 1500}},
		{EventEntryFailed, EntryEventData{EntryID: 9, JobName: "send-email", Lane: "default", Retries: 3, Error: "smtp down", NextRunAt: "2024-05-01T12:01:00Z"}},
		{EventEntryDead, EntryEventData{EntryID: 9, JobName: "send-email", Lane: "default", Retries: 3, Error: "smtp down"}},
		{EventEntryRetried, EntryEventData{EntryID: 9, JobName: "send-email", Lane: "default", Retries: 3, ReplacementID: 10}},
	}
	for i, w := range want {
		select {
		case evt := <-sub.C():
			if evt.Type != w.typ {
				t.Errorf("event[%d].Type = %q, want %q", i, evt.Type, w.typ)
			}
			if !evt.Timestamp.Equal(clock.Now()) {
				t.Errorf("event[%d].Timestamp = %v, want %v", i, evt.Timestamp, clock.Now())
			}
			var got EntryEventData
			if err := json.Unmarshal(evt.Data, &got); err != nil {
				t.Fatalf("event[%d]: decode data: %v", i, err)
			}
			if got != w.data {
				t.Errorf("event[%d].Data = %+v, want %+v", i, got, w.data)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBrokerShutdownClosesSubscribers(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("shutdown-sub", TopicFirehose)

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("channel should be closed after shutdown")
	}
	if got := b.Stats().SubscriberCount; got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	sub := b.Subscribe("sub-rm", TopicFirehose)

	// Remove subscriber.
	b.RemoveSubscriber("sub-rm")

	evt := &Event{
		Type:      EventEntryEnqueued,
		Timestamp: time.Now().UTC(),
		Topic:     EntryTopic(1),
		Data:      json.RawMessage(`{}`),
	}
	b.publish(evt)

	// Channel should be closed.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("channel should be closed after RemoveSubscriber")
		}
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestBrokerStats(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())

	_ = b.Subscribe("s1", TopicEntries)
	_ = b.Subscribe("s2", LaneTopic("low"), TopicFirehose)

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("SubscriberCount = %d, want 2", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("TopicCount = %d, want >= 2", stats.TopicCount)
	}
}

func TestSubscriberCredits(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("credit-sub", 10, 2)
	evt := &Event{Type: EventEntryEnqueued, Data: json.RawMessage(`{}`)}

	for i := range 2 {
		if got := sub.send(evt); got != delivered {
			t.Fatalf("send %d = %v, want delivered", i, got)
		}
	}
	if got := sub.send(evt); got != dropped {
		t.Fatalf("send without credits = %v, want dropped", got)
	}
	if sub.Credits() != 0 {
		t.Errorf("Credits = %d, want 0 after a refused send", sub.Credits())
	}
	if sub.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", sub.Dropped())
	}

	sub.AddCredits(5)
	if got := sub.send(evt); got != delivered {
		t.Fatalf("send after AddCredits = %v, want delivered", got)
	}
	if sub.Credits() != 4 {
		t.Errorf("Credits = %d, want 4", sub.Credits())
	}
}

func TestSubscriberBufferFull(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("full-sub", 1, 10)
	evt := &Event{Type: EventEntryEnqueued}

	if got := sub.send(evt); got != delivered {
		t.Fatalf("first send = %v, want delivered", got)
	}
	if got := sub.send(evt); got != dropped {
		t.Fatalf("send into full buffer = %v, want dropped", got)
	}
	if sub.Credits() != 9 {
		t.Errorf("Credits = %d, want 9 (refund on full buffer)", sub.Credits())
	}
}

func TestSubscriberClosedSkips(t *testing.T) {
	t.Parallel()

	sub := NewSubscriber("closed-sub", 1, 10)
	sub.Close()
	sub.Close()

	if got := sub.send(&Event{Type: EventEntryEnqueued}); got != skipped {
		t.Fatalf("send after Close = %v, want skipped", got)
	}
	if sub.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", sub.Dropped())
	}
}

func TestSubscriberFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter Filter
		evt    *Event
		want   delivery
	}{
		{"type match", OnlyTypes(EventEntryFailed, EventEntryDead), &Event{Type: EventEntryDead}, delivered},
		{"type miss", OnlyTypes(EventEntryFailed), &Event{Type: EventEntryProcessed}, skipped},
		{"lane match", OnlyLanes("critical"), &Event{Type: EventEntryStarted, Lane: "critical"}, delivered},
		{"lane miss", OnlyLanes("critical"), &Event{Type: EventEntryStarted, Lane: "low"}, skipped},
		{"no filter", nil, &Event{Type: EventEntryStarted}, delivered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := NewSubscriber("filter-sub", 10, 100)
			sub.SetFilter(tt.filter)
			if got := sub.send(tt.evt); got != tt.want {
				t.Errorf("send = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBrokerSubscribeFiltered(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.SubscribeFiltered("dead-only", OnlyTypes(EventEntryDead), TopicEntries)

	e := &entry.Entry{ID: 3, Name: "email", Lane: "default"}
	_ = b.OnEntryStarted(context.Background(), e)
	_ = b.OnEntryDead(context.Background(), e, errors.New("gave up"))

	select {
	case evt := <-sub.C():
		if evt.Type != EventEntryDead {
			t.Fatalf("Type = %q, want %q", evt.Type, EventEntryDead)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dead event")
	}
	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected extra event %q", evt.Type)
	default:
	}
}

func TestBrokerCountsDropped(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger(), WithDefaultCredits(1))
	_ = b.Subscribe("stingy", TopicFirehose)

	e := &entry.Entry{ID: 1, Name: "email", Lane: "default"}
	_ = b.OnEntryEnqueued(context.Background(), e)
	_ = b.OnEntryStarted(context.Background(), e)

	stats := b.Stats()
	if stats.TotalPublished != 1 || stats.TotalDropped != 1 {
		t.Errorf("published/dropped = %d/%d, want 1/1", stats.TotalPublished, stats.TotalDropped)
	}
}

func TestTopicValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic string
		valid bool
	}{
		{TopicEntries, true},
		{TopicFirehose, true},
		{"entry:123", true},
		{"entry:abc", false},
		{"entry:0", false},
		{"lane:default", true},
		{"lane:", false},
		{"invalid", false},
		{"unknown:entity", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if tt.valid && err != nil {
				t.Errorf("ValidateTopic(%q) returned error: %v", tt.topic, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateTopic(%q) should return error", tt.topic)
			}
		})
	}
}

func TestParseTopics(t *testing.T) {
	t.Parallel()

	got, err := ParseTopics(" entries, lane:low ,,")
	if err != nil {
		t.Fatalf("ParseTopics: %v", err)
	}
	if len(got) != 2 || got[0] != TopicEntries || got[1] != "lane:low" {
		t.Errorf("ParseTopics = %v", got)
	}

	got, err = ParseTopics("")
	if err != nil || len(got) != 1 || got[0] != TopicFirehose {
		t.Errorf("ParseTopics(\"\") = %v, %v; want [firehose]", got, err)
	}

	if _, err := ParseTopics("entries,bogus"); err == nil {
		t.Error("ParseTopics should reject an unknown topic")
	}
}

func TestParseEventTypes(t *testing.T) {
	t.Parallel()

	got, err := ParseEventTypes("entry.failed,entry.dead")
	if err != nil {
		t.Fatalf("ParseEventTypes: %v", err)
	}
	if len(got) != 2 || got[0] != EventEntryFailed || got[1] != EventEntryDead {
		t.Errorf("ParseEventTypes = %v", got)
	}
	if got, _ := ParseEventTypes(" "); got != nil {
		t.Errorf("blank list = %v, want nil", got)
	}
	if _, err := ParseEventTypes("entry.exploded"); err == nil {
		t.Error("ParseEventTypes should reject an unknown type")
	}
}

func TestTopicRegistry(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()

	sub1 := NewSubscriber("s1", 10, 100)
	sub2 := NewSubscriber("s2", 10, 100)

	tr.Subscribe("lane:a", sub1)
	tr.Subscribe("lane:a", sub2)
	tr.Subscribe("lane:b", sub1)

	if tr.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", tr.TopicCount())
	}
	if tr.SubscriberCount("lane:a") != 2 {
		t.Errorf("SubscriberCount(lane:a) = %d, want 2", tr.SubscriberCount("lane:a"))
	}
	if got := sub1.Topics(); len(got) != 2 || got[0] != "lane:a" || got[1] != "lane:b" {
		t.Errorf("sub1.Topics() = %v", got)
	}

	tr.Unsubscribe("lane:a", "s2")
	if tr.SubscriberCount("lane:a") != 1 {
		t.Errorf("SubscriberCount(lane:a) = %d, want 1", tr.SubscriberCount("lane:a"))
	}

	tr.UnsubscribeAll("s1")
	if tr.TopicCount() != 0 {
		t.Errorf("TopicCount after UnsubscribeAll = %d, want 0", tr.TopicCount())
	}
	if got := sub1.Topics(); len(got) != 0 {
		t.Errorf("sub1.Topics() after UnsubscribeAll = %v", got)
	}
}

func TestBroadcastDeduplication(t *testing.T) {
	t.Parallel()

	tr := NewTopicRegistry()
	sub := NewSubscriber("dedup-sub", 10, 100)
	tr.Subscribe(TopicFirehose, sub)
	tr.Subscribe(TopicEntries, sub)

	sent, lost := tr.Broadcast([]string{TopicFirehose, TopicEntries}, &Event{Type: EventEntryEnqueued})
	if sent != 1 || lost != 0 {
		t.Errorf("Broadcast = (%d, %d), want (1, 0)", sent, lost)
	}
}

func TestTopicsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		evt      *Event
		expected []string
	}{
		{
			evt:      &Event{Type: EventEntryEnqueued, Topic: "entry:1"},
			expected: []string{TopicFirehose, TopicEntries, "entry:1"},
		},
		{
			evt:      &Event{Type: EventEntryDead, Topic: "entry:2", Lane: "critical"},
			expected: []string{TopicFirehose, TopicEntries, "entry:2", "lane:critical"},
		},
		{
			evt:      &Event{Type: "engine.custom"},
			expected: []string{TopicFirehose},
		},
	}

	for _, tt := range tests {
		t.Run(string(tt.evt.Type), func(t *testing.T) {
			topics := topicsFor(tt.evt)
			if len(topics) != len(tt.expected) {
				t.Fatalf("got %d topics, want %d: %v", len(topics), len(tt.expected), topics)
			}
			for i, topic := range topics {
				if topic != tt.expected[i] {
					t.Errorf("topic[%d] = %q, want %q", i, topic, tt.expected[i])
				}
			}
		})
	}
}
