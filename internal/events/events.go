package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSyncStatusChanged     = "sync_status_changed"
	EventQueueItemApplied      = "queue_item_applied"
	EventQueueItemDeadLettered = "queue_item_dead_lettered"
	EventCacheRefreshed        = "cache_refreshed"
)

// SyncStatusPayload is published whenever the write-path status changes.
type SyncStatusPayload struct {
	Status   string `json:"status"`
	Previous string `json:"previous"`
	Pending  int    `json:"pending"`
}

// QueueItemPayload identifies one queue item leaving the queue.
type QueueItemPayload struct {
	SequenceID int64  `json:"sequence_id"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason,omitempty"`
}

// CacheRefreshedPayload carries the row counts of a replaced cache snapshot.
type CacheRefreshedPayload struct {
	Users         int `json:"users"`
	Trips         int `json:"trips"`
	Bookings      int `json:"bookings"`
	Notifications int `json:"notifications"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
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

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with a JSON payload.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
