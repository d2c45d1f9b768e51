package models

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

const (
	RolePassenger = "passenger"
	RoleDriver    = "driver"
)

const (
	// DateLayout is the remote-side format of trip dates.
	DateLayout = "2006-01-02"

	// ClockLayout is the remote-side format of departure and arrival times.
	ClockLayout = "15:04"
)

// ValidBookingStatus reports whether status is one the remote store accepts.
func ValidBookingStatus(status string) bool {
	switch status {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusCompleted:
		return true
	default:
		return false
	}
}
