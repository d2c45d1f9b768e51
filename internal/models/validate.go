package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

func (p UserPayload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("user id is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("user email is required")
	}
	if p.Role != RolePassenger && p.Role != RoleDriver {
		return fmt.Errorf("unknown user role %q", p.Role)
	}
	return nil
}

func (r TripRecord) Validate() error {
	if strings.TrimSpace(r.DriverID) == "" {
		return errors.New("trip driver_id is required")
	}
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("trip date %q: expected YYYY-MM-DD", r.Date)
	}
	for name, v := range map[string]string{"departure_time": r.DepartureTime, "arrival_time": r.ArrivalTime} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(ClockLayout, v); err != nil {
			return fmt.Errorf("trip %s %q: expected HH:MM", name, v)
		}
	}
	if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" {
		return errors.New("trip from and to are required")
	}
	if r.TotalSeats <= 0 {
		return errors.New("trip total_seats must be positive")
	}
	if r.AvailableSeats < 0 || r.AvailableSeats > r.TotalSeats {
		return fmt.Errorf("trip available_seats %d out of range [0, %d]", r.AvailableSeats, r.TotalSeats)
	}
	if r.Price < 0 {
		return errors.New("trip price must not be negative")
	}
	return nil
}

func (p BookingPayload) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("booking id is required")
	}
	if strings.TrimSpace(p.TripID) == "" {
		return errors.New("booking trip_id is required")
	}
	if strings.TrimSpace(p.PassengerID) == "" {
		return errors.New("booking passenger_id is required")
	}
	if !ValidBookingStatus(p.Status) {
		return fmt.Errorf("unknown booking status %q", p.Status)
	}
	return nil
}

func (p BookingStatusPatch) Validate() error {
	if !ValidBookingStatus(p.Status) {
		return fmt.Errorf("unknown booking status %q", p.Status)
	}
	return nil
}
