package models

import (
	"encoding/json"
	"time"
)

// OperationKind names the remote write a queue item performs.
type OperationKind string

const (
	OpUpsertUser    OperationKind = "UpsertUser"
	OpUpsertTrip    OperationKind = "UpsertTrip"
	OpCreateBooking OperationKind = "CreateBooking"
	OpUpdateBooking OperationKind = "UpdateBooking"
)

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OpUpsertUser, OpUpsertTrip, OpCreateBooking, OpUpdateBooking:
		return true
	default:
		return false
	}
}

// QueueItem is one buffered write waiting to be applied to the remote store.
// SequenceID is the only ordering key; EnqueuedAt is informational.
type QueueItem struct {
	SequenceID    int64           `json:"sequenceId"`
	OperationKind OperationKind   `json:"operationKind"`
	Payload       json.RawMessage `json:"payload"`
	TargetID      string          `json:"targetId,omitempty"`
	EnqueuedAt    time.Time       `json:"enqueuedAt"`
}

// DeadLetter is a queue item removed from the queue after the remote store
// rejected it.
type DeadLetter struct {
	Item     QueueItem `json:"item"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failedAt"`
}
