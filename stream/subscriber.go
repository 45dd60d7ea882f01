package stream

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Filter reports whether a subscriber wants evt.
type Filter func(evt *Event) bool

// OnlyTypes passes events of the listed types.
func OnlyTypes(types ...EventType) Filter {
	return func(evt *Event) bool { return slices.Contains(types, evt.Type) }
}

// OnlyLanes passes events for entries in the listed lanes.
func OnlyLanes(lanes ...string) Filter {
	return func(evt *Event) bool { return slices.Contains(lanes, evt.Lane) }
}

// delivery is the outcome of offering one event to a subscriber.
type delivery int

const (
	delivered delivery = iota
	skipped            // filtered out or subscriber closed
	dropped            // out of credits or buffer full
)

// Subscriber is one consumer of the broker. Each delivered event costs a
// credit; a subscriber with no credits, or a full buffer, loses the event
// instead of blocking the engine.
type Subscriber struct {
	id      string
	credits atomic.Int64
	dropped atomic.Int64

	// mu guards ch against a concurrent Close, plus topics and filter.
	mu     sync.Mutex
	ch     chan *Event
	closed bool
	topics map[string]struct{}
	filter Filter
}

// NewSubscriber creates a subscriber buffering up to bufferSize events and
// holding initialCredits credits.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the event channel. It is closed when the subscriber is removed
// or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits grants n more deliveries.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the remaining credits.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped returns how many events were lost to missing credits or a full
// buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter installs fn; nil removes the filter.
func (s *Subscriber) SetFilter(fn Filter) {
	s.mu.Lock()
	s.filter = fn
	s.mu.Unlock()
}

// Topics returns the subscribed topic names, sorted.
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// send offers evt without blocking.
func (s *Subscriber) send(evt *Event) delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || (s.filter != nil && !s.filter(evt)) {
		return skipped
	}
	if s.credits.Add(-1) < 0 {
		s.credits.Add(1)
		s.dropped.Add(1)
		return dropped
	}

	select {
	case s.ch <- evt:
		return delivered
	default:
		s.credits.Add(1)
		s.dropped.Add(1)
		return dropped
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
