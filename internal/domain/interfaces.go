package domain

import (
	"context"
	"encoding/json"

	"ridesync/internal/models"
)

// KVStore is the local durable key-value store backing the queue and the
// cache. Put writes all entries atomically or none of them.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, entries map[string][]byte) error
}

// Gateway applies one queued write to the remote store.
type Gateway interface {
	Apply(ctx context.Context, item models.QueueItem) error
}

// Prober answers whether the remote store is reachable right now.
type Prober interface {
	CheckConnection(ctx context.Context) models.ConnectionStatus
}

// Reader performs the full read-side fetch of every cached collection.
// Rows are returned verbatim in remote field naming.
type Reader interface {
	FetchUsers(ctx context.Context) ([]json.RawMessage, error)
	FetchTrips(ctx context.Context) ([]json.RawMessage, error)
	FetchBookings(ctx context.Context) ([]json.RawMessage, error)
	FetchNotifications(ctx context.Context) ([]json.RawMessage, error)
}

// RemoteStore bundles everything the subsystem needs from the remote side.
type RemoteStore interface {
	Gateway
	Prober
	Reader
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
