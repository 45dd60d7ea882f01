package stream

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Topics:
//
//	firehose     every event
//	entries      every entry lifecycle event
//	entry:<id>   events for one entry
//	lane:<name>  events for entries in one lane
const (
	TopicFirehose = "firehose"
	TopicEntries  = "entries"

	entryPrefix = "entry:"
	lanePrefix  = "lane:"
)

// EntryTopic returns the topic for entry id.
func EntryTopic(id int64) string { return entryPrefix + strconv.FormatInt(id, 10) }

// LaneTopic returns the topic for a lane.
func LaneTopic(lane string) string { return lanePrefix + lane }

// ValidateTopic reports whether topic names a known topic.
func ValidateTopic(topic string) error {
	switch {
	case topic == TopicFirehose, topic == TopicEntries:
		return nil
	case strings.HasPrefix(topic, entryPrefix):
		id, err := strconv.ParseInt(topic[len(entryPrefix):], 10, 64)
		if err != nil || id < 1 {
			return fmt.Errorf("stream: invalid entry id in topic %q", topic)
		}
		return nil
	case strings.HasPrefix(topic, lanePrefix):
		if topic == lanePrefix {
			return fmt.Errorf("stream: empty lane in topic %q", topic)
		}
		return nil
	default:
		return fmt.Errorf("stream: unknown topic %q", topic)
	}
}

// ParseTopics splits a comma-separated topic list and validates each
// name. A blank list means the firehose.
func ParseTopics(raw string) ([]string, error) {
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		if err := ValidateTopic(t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	if len(topics) == 0 {
		return []string{TopicFirehose}, nil
	}
	return topics, nil
}

// ParseEventTypes splits a comma-separated list of event types. A blank
// list yields nil.
func ParseEventTypes(raw string) ([]EventType, error) {
	var types []EventType
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		typ := EventType(t)
		if !typ.Valid() {
			return nil, fmt.Errorf("stream: unknown event type %q", t)
		}
		types = append(types, typ)
	}
	return types, nil
}

// topicsFor lists the topics evt is published on, firehose first.
func topicsFor(evt *Event) []string {
	topics := []string{TopicFirehose}
	if evt.Type.Valid() {
		topics = append(topics, TopicEntries)
	}
	if evt.Topic != "" {
		topics = append(topics, evt.Topic)
	}
	if evt.Lane != "" {
		topics = append(topics, LaneTopic(evt.Lane))
	}
	return topics
}

// TopicRegistry maps topics to their subscribers. It is safe for
// concurrent use.
type TopicRegistry struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscriber
}

// NewTopicRegistry creates an empty registry.
func NewTopicRegistry() *TopicRegistry {
	return &TopicRegistry{topics: make(map[string]map[string]*Subscriber)}
}

// Subscribe puts sub on topic.
func (tr *TopicRegistry) Subscribe(topic string, sub *Subscriber) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	subs := tr.topics[topic]
	if subs == nil {
		subs = make(map[string]*Subscriber)
		tr.topics[topic] = subs
	}
	subs[sub.ID()] = sub
	sub.addTopic(topic)
}

// Unsubscribe takes subscriberID off topic. Empty topics are removed.
func (tr *TopicRegistry) Unsubscribe(topic, subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.unsubscribeLocked(topic, subscriberID)
}

// UnsubscribeAll takes subscriberID off every topic.
func (tr *TopicRegistry) UnsubscribeAll(subscriberID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for topic := range tr.topics {
		tr.unsubscribeLocked(topic, subscriberID)
	}
}

func (tr *TopicRegistry) unsubscribeLocked(topic, subscriberID string) {
	subs := tr.topics[topic]
	if sub, ok := subs[subscriberID]; ok {
		sub.removeTopic(topic)
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(tr.topics, topic)
	}
}

// Broadcast offers evt once to every subscriber on any of topics, and
// returns how many received it and how many lost it.
func (tr *TopicRegistry) Broadcast(topics []string, evt *Event) (sent, lost int) {
	tr.mu.RLock()
	targets := make(map[string]*Subscriber)
	for _, topic := range topics {
		for id, sub := range tr.topics[topic] {
			targets[id] = sub
		}
	}
	tr.mu.RUnlock()

	for _, sub := range targets {
		switch sub.send(evt) {
		case delivered:
			sent++
		case dropped:
			lost++
		}
	}
	return sent, lost
}

// TopicCount returns the number of topics with at least one subscriber.
func (tr *TopicRegistry) TopicCount() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics)
}

// SubscriberCount returns the number of subscribers on topic.
func (tr *TopicRegistry) SubscriberCount(topic string) int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.topics[topic])
}
