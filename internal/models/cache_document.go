package models

import "encoding/json"

// CacheDocument is the persisted cache layout. Rows are kept exactly as the
// remote store returned them so unknown fields survive a round trip.
type CacheDocument struct {
	Users         []json.RawMessage `json:"users"`
	Trips         []json.RawMessage `json:"trips"`
	Bookings      []json.RawMessage `json:"bookings"`
	Notifications []json.RawMessage `json:"notifications"`
}

// EmptyCacheDocument returns a document whose collections encode as [].
func EmptyCacheDocument() CacheDocument {
	return CacheDocument{
		Users:         []json.RawMessage{},
		Trips:         []json.RawMessage{},
		Bookings:      []json.RawMessage{},
		Notifications: []json.RawMessage{},
	}
}

// Normalize replaces nil collections with empty ones.
func (d CacheDocument) Normalize() CacheDocument {
	if d.Users == nil {
		d.Users = []json.RawMessage{}
	}
	if d.Trips == nil {
		d.Trips = []json.RawMessage{}
	}
	if d.Bookings == nil {
		d.Bookings = []json.RawMessage{}
	}
	if d.Notifications == nil {
		d.Notifications = []json.RawMessage{}
	}
	return d
}
