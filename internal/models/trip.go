package models

// TripRecord is a trips row in the remote store's field naming. It doubles
// as the UpsertTrip payload; an empty ID lets the remote store assign one.
type TripRecord struct {
	ID               string  `json:"id,omitempty"`
	DriverID         string  `json:"driver_id"`
	Date             string  `json:"date"`
	Price            float64 `json:"price"`
	TotalSeats       int     `json:"total_seats"`
	AvailableSeats   int     `json:"available_seats"`
	From             string  `json:"from"`
	To               string  `json:"to"`
	DepartureAddress string  `json:"departure_address"`
	ArrivalAddress   string  `json:"arrival_address"`
	DepartureTime    string  `json:"departure_time"`
	ArrivalTime      string  `json:"arrival_time"`
	BusPlate         string  `json:"bus_plate"`
	Type             string  `json:"type"`
}

// Trip is the application-side view of a trip.
type Trip struct {
	ID               string
	DriverID         string
	Date             string
	Price            float64
	TotalSeats       int
	AvailableSeats   int
	Origin           string
	Destination      string
	DepartureAddress string
	ArrivalAddress   string
	DepartureTime    string
	ArrivalTime      string
	BusPlate         string
	Kind             string
}

// Full reports whether no seats are left.
func (t Trip) Full() bool { return t.AvailableSeats <= 0 }

func (r TripRecord) ToTrip() Trip {
	return Trip{
		ID:               r.ID,
		DriverID:         r.DriverID,
		Date:             r.Date,
		Price:            r.Price,
		TotalSeats:       r.TotalSeats,
		AvailableSeats:   r.AvailableSeats,
		Origin:           r.From,
		Destination:      r.To,
		DepartureAddress: r.DepartureAddress,
		ArrivalAddress:   r.ArrivalAddress,
		DepartureTime:    r.DepartureTime,
		ArrivalTime:      r.ArrivalTime,
		BusPlate:         r.BusPlate,
		Kind:             r.Type,
	}
}

// TripRecordFrom converts a trip back to its remote form.
func TripRecordFrom(t Trip) TripRecord {
	return TripRecord{
		ID:               t.ID,
		DriverID:         t.DriverID,
		Date:             t.Date,
		Price:            t.Price,
		TotalSeats:       t.TotalSeats,
		AvailableSeats:   t.AvailableSeats,
		From:             t.Origin,
		To:               t.Destination,
		DepartureAddress: t.DepartureAddress,
		ArrivalAddress:   t.ArrivalAddress,
		DepartureTime:    t.DepartureTime,
		ArrivalTime:      t.ArrivalTime,
		BusPlate:         t.BusPlate,
		Type:             t.Kind,
	}
}
