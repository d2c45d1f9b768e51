package events

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	callCount := 0
	bus.Subscribe(EventSyncStatusChanged, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventSyncStatusChanged, SyncStatusPayload{Status: "Offline", Previous: "Syncing", Pending: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, callCount)
	require.NotNil(t, received)
	assert.Equal(t, EventSyncStatusChanged, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded SyncStatusPayload
	require.NoError(t, json.Unmarshal(received.Payload, &decoded))
	assert.Equal(t, SyncStatusPayload{Status: "Offline", Previous: "Syncing", Pending: 2}, decoded)
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe(EventQueueItemApplied, func(_ *Event) error { count1++; return nil })
	bus.Subscribe(EventQueueItemApplied, func(_ *Event) error { count2++; return nil })
	bus.Subscribe(EventCacheRefreshed, func(_ *Event) error { t.Error("wrong event type delivered"); return nil })

	bus.Publish(&Event{Type: EventQueueItemApplied})

	assert.Equal(t, 1, count1)
	assert.Equal(t, 1, count2)
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	assert.NotPanics(t, func() { bus.Publish(&Event{Type: "unknown"}) })
	assert.NoError(t, bus.PublishJSON("unknown", nil))

	var nilBus *EventBus
	assert.NoError(t, nilBus.PublishJSON(EventCacheRefreshed, CacheRefreshedPayload{}))
}

func TestEventBusConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	var mu sync.Mutex
	seen := 0
	bus.Subscribe(EventQueueItemApplied, func(_ *Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			_ = bus.PublishJSON(EventQueueItemApplied, QueueItemPayload{SequenceID: seq, Kind: "UpsertUser"})
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 20, seen)
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent(EventQueueItemDeadLettered, QueueItemPayload{SequenceID: 7, Kind: "CreateBooking", Reason: "duplicate key"})
	require.NoError(t, err)

	assert.Equal(t, EventQueueItemDeadLettered, event.Type)
	assert.False(t, event.CreatedAt.IsZero())
	assert.JSONEq(t, `{"sequence_id":7,"kind":"CreateBooking","reason":"duplicate key"}`, string(event.Payload))
}

func TestPublishJSONUnencodablePayload(t *testing.T) {
	bus := NewEventBus()
	called := false
	bus.Subscribe(EventCacheRefreshed, func(*Event) error {
		called = true
		return nil
	})

	err := bus.PublishJSON(EventCacheRefreshed, make(chan int))
	assert.Error(t, err)
	assert.False(t, called)
}
