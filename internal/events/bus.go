package events

import (
	"sync"
	"time"
)

// AlertEventType identifies a lifecycle change pushed to stream subscribers
type AlertEventType string

const (
	AlertCreated      AlertEventType = "alert.created"
	AlertAcknowledged AlertEventType = "alert.acknowledged"
	AlertResolved     AlertEventType = "alert.resolved"
	AlertEscalated    AlertEventType = "alert.escalated"
)

// AlertEvent is the payload broadcast for each alert lifecycle change
type AlertEvent struct {
	Type        AlertEventType `json:"type"`
	Fingerprint string         `json:"fingerprint"`
	Title       string         `json:"title"`
	Severity    int            `json:"severity"`
	Source      string         `json:"source"`
	Level       int            `json:"level"`
	Actor       string         `json:"actor,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Publisher is the side the alert service talks to
type Publisher interface {
	Publish(event AlertEvent)
}

// Bus fans alert events out to subscribers. Slow subscribers are skipped
// rather than blocking the publisher; the stream is best-effort.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan AlertEvent]struct{}
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{subs: make(map[chan AlertEvent]struct{})}
}

// Subscribe registers a new subscriber channel
func (b *Bus) Subscribe() chan AlertEvent {
	ch := make(chan AlertEvent, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel
func (b *Bus) Unsubscribe(ch chan AlertEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers the event to all current subscribers
func (b *Bus) Publish(event AlertEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			// subscriber buffer full, drop the event for this subscriber
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
