package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventOperationsSynced      = "operations_synced"
	EventOperationDeadLettered = "operation_dead_lettered"
	EventFlushCompleted        = "flush_completed"
)

// SyncedPayload is published once per flush that confirmed at least one operation.
type SyncedPayload struct {
	Queue string    `json:"queue"`
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// DeadLetterPayload describes an operation that left the replay loop.
type DeadLetterPayload struct {
	Queue       string `json:"queue"`
	OperationID string `json:"operation_id"`
	Kind        string `json:"kind"`
	RetryCount  int    `json:"retry_count"`
	Reason      string `json:"reason"`
}

// FlushPayload summarises a finished flush.
type FlushPayload struct {
	Queue        string    `json:"queue"`
	Attempted    int       `json:"attempted"`
	Synced       int       `json:"synced"`
	Failed       int       `json:"failed"`
	DeadLettered int       `json:"dead_lettered"`
	Remaining    int       `json:"remaining"`
	At           time.Time `json:"at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers map[string][]subscription
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for a given event type and returns a func removing it.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Publish notifies subscribers of the event type. Handlers run synchronously,
// every handler is called and their errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, s := range subs {
		if err := s.handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
