// Package bus provides the async event stream between the agent core and
// its consumers: CLI rendering, trace publishing, tests.
package bus

import (
	"sync"
	"time"
)

// EventKind identifies the type of agent event.
type EventKind string

const (
	EventSessionStart EventKind = "session_start"
	EventSessionEnd   EventKind = "session_end"
	EventCycleStart   EventKind = "cycle_start"
	EventAssistant    EventKind = "assistant_text"
	EventToolStart    EventKind = "tool_call_start"
	EventToolEnd      EventKind = "tool_call_end"
	EventPlanUpdated  EventKind = "plan_updated"
	EventSummarized   EventKind = "context_summarized"
	EventWarning      EventKind = "warning"
	EventError        EventKind = "error"
)

// Event is one observation from a running session.
type Event struct {
	Kind      EventKind      `json:"kind"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

type subscriber struct {
	ch chan Event
}

// Bus fans events out to subscribers. Publish never blocks the agent loop:
// a subscriber that falls behind loses events instead of stalling the run.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Publish stamps and delivers an event to every subscriber.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
		default:
			// Subscriber buffer full; drop rather than block the loop.
		}
	}
}

// Subscribe registers a new consumer and returns its channel plus an
// unsubscribe func. The channel is closed on unsubscribe or bus Close.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 256
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, buffer)}
	if b.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
