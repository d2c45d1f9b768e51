package cache

import (
	"encoding/json"
	"fmt"

	"ridesync/internal/models"
)

// Snapshot is an immutable view of the last successful full read. Lists keep
// the order the remote store returned; lookups are by id.
type Snapshot struct {
	raw models.CacheDocument

	users         []models.User
	trips         []models.Trip
	bookings      []models.Booking
	notifications []models.Notification

	userIdx         map[string]int
	tripIdx         map[string]int
	bookingIdx      map[string]int
	notificationIdx map[string]int
}

// EmptySnapshot is the snapshot of a cache that has never been filled.
func EmptySnapshot() *Snapshot {
	s, _ := newSnapshot(models.EmptyCacheDocument())
	return s
}

func newSnapshot(doc models.CacheDocument) (*Snapshot, error) {
	doc = doc.Normalize()
	s := &Snapshot{
		raw:             doc,
		users:           make([]models.User, 0, len(doc.Users)),
		trips:           make([]models.Trip, 0, len(doc.Trips)),
		bookings:        make([]models.Booking, 0, len(doc.Bookings)),
		notifications:   make([]models.Notification, 0, len(doc.Notifications)),
		userIdx:         make(map[string]int, len(doc.Users)),
		tripIdx:         make(map[string]int, len(doc.Trips)),
		bookingIdx:      make(map[string]int, len(doc.Bookings)),
		notificationIdx: make(map[string]int, len(doc.Notifications)),
	}

	for i, row := range doc.Users {
		var r models.UserRecord
		if err := json.Unmarshal(row, &r); err != nil {
			return nil, fmt.Errorf("decode user row %d: %w", i, err)
		}
		s.userIdx[r.ID] = len(s.users)
		s.users = append(s.users, r.ToUser())
	}
	for i, row := range doc.Trips {
		var r models.TripRecord
		if err := json.Unmarshal(row, &r); err != nil {
			return nil, fmt.Errorf("decode trip row %d: %w", i, err)
		}
		s.tripIdx[r.ID] = len(s.trips)
		s.trips = append(s.trips, r.ToTrip())
	}
	for i, row := range doc.Bookings {
		var r models.BookingRecord
		if err := json.Unmarshal(row, &r); err != nil {
			return nil, fmt.Errorf("decode booking row %d: %w", i, err)
		}
		s.bookingIdx[r.ID] = len(s.bookings)
		s.bookings = append(s.bookings, r.ToBooking())
	}
	for i, row := range doc.Notifications {
		var r models.NotificationRecord
		if err := json.Unmarshal(row, &r); err != nil {
			return nil, fmt.Errorf("decode notification row %d: %w", i, err)
		}
		s.notificationIdx[r.ID] = len(s.notifications)
		s.notifications = append(s.notifications, r.ToNotification())
	}
	return s, nil
}

// Raw returns the wire-form document the snapshot was built from.
func (s *Snapshot) Raw() models.CacheDocument { return s.raw }

func (s *Snapshot) Users() []models.User { return append([]models.User(nil), s.users...) }

// Trips are ordered by date, earliest first.
func (s *Snapshot) Trips() []models.Trip { return append([]models.Trip(nil), s.trips...) }

// Bookings are ordered newest first.
func (s *Snapshot) Bookings() []models.Booking { return append([]models.Booking(nil), s.bookings...) }

// Notifications are ordered newest first.
func (s *Snapshot) Notifications() []models.Notification {
	return append([]models.Notification(nil), s.notifications...)
}

func (s *Snapshot) User(id string) (models.User, bool) {
	i, ok := s.userIdx[id]
	if !ok {
		return models.User{}, false
	}
	return s.users[i], true
}

func (s *Snapshot) Trip(id string) (models.Trip, bool) {
	i, ok := s.tripIdx[id]
	if !ok {
		return models.Trip{}, false
	}
	return s.trips[i], true
}

func (s *Snapshot) Booking(id string) (models.Booking, bool) {
	i, ok := s.bookingIdx[id]
	if !ok {
		return models.Booking{}, false
	}
	return s.bookings[i], true
}

func (s *Snapshot) Notification(id string) (models.Notification, bool) {
	i, ok := s.notificationIdx[id]
	if !ok {
		return models.Notification{}, false
	}
	return s.notifications[i], true
}

// Empty reports whether the snapshot holds no rows at all.
func (s *Snapshot) Empty() bool {
	return len(s.users)+len(s.trips)+len(s.bookings)+len(s.notifications) == 0
}
