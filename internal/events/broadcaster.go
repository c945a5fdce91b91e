// Package events provides the signal bus that history state changes are published on.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventChangedItems    = "changed-items"
	EventReady           = "ready"
	EventError           = "error"
	EventCopied          = "copied"
	EventSetAsCurrent    = "set-as-current"
	EventNewCurrent      = "new-current"
	EventNoLongerCurrent = "no-longer-current"
	EventChangeDeleted   = "change:deleted"
	EventChangePurged    = "change:purged"
	EventChangeName      = "change:name"
	EventSort            = "sort"
)

// Event represents one state change of a history or its contents.
type Event struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	HistoryID string `json:"history_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Handler is called synchronously for every published event.
type Handler func(Event)

// Broadcaster fans events out to channel subscribers and in-process handlers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	handlers    map[int]Handler
	nextHandler int
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
		handlers:    make(map[int]Handler),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Listen registers fn for every subsequent event and returns a function
// that removes it.
func (b *Broadcaster) Listen(fn Handler) func() {
	b.mu.Lock()
	id := b.nextHandler
	b.nextHandler++
	b.handlers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish sends an event to all subscribers and handlers. Channel delivery
// is non-blocking and drops events for slow consumers. Handlers run on the
// publishing goroutine, in registration order, and may publish themselves.
func (b *Broadcaster) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	b.mu.RLock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	handlers := make([]Handler, 0, len(b.handlers))
	for id := 0; id < b.nextHandler; id++ {
		if fn, ok := b.handlers[id]; ok {
			handlers = append(handlers, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(event)
	}
}

// Count returns the current number of channel subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
