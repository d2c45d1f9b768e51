package models

import "time"

// BookingRecord is a bookings row in the remote store's field naming.
type BookingRecord struct {
	ID            string    `json:"id"`
	TripID        string    `json:"trip_id"`
	PassengerID   string    `json:"passenger_id"`
	PassengerName string    `json:"passenger_name"`
	Status        string    `json:"status"`
	CreatedAt     Timestamp `json:"created_at"`
}

// BookingPayload is the CreateBooking queue payload.
type BookingPayload struct {
	ID            string `json:"id"`
	TripID        string `json:"trip_id"`
	PassengerID   string `json:"passenger_id"`
	PassengerName string `json:"passenger_name"`
	Status        string `json:"status"`
}

// BookingStatusPatch is the UpdateBooking queue payload; the row is
// identified by QueueItem.TargetID.
type BookingStatusPatch struct {
	Status string `json:"status"`
}

// Booking is the application-side view of a booking.
type Booking struct {
	ID            string
	TripID        string
	PassengerID   string
	PassengerName string
	Status        string
	BookedAt      time.Time
}

// Active reports whether the booking still holds a seat.
func (b Booking) Active() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

func (r BookingRecord) ToBooking() Booking {
	return Booking{
		ID:            r.ID,
		TripID:        r.TripID,
		PassengerID:   r.PassengerID,
		PassengerName: r.PassengerName,
		Status:        r.Status,
		BookedAt:      r.CreatedAt.Time,
	}
}

// BookingRecordFrom converts a booking back to its remote form.
func BookingRecordFrom(b Booking) BookingRecord {
	return BookingRecord{
		ID:            b.ID,
		TripID:        b.TripID,
		PassengerID:   b.PassengerID,
		PassengerName: b.PassengerName,
		Status:        b.Status,
		CreatedAt:     Timestamp{b.BookedAt},
	}
}
