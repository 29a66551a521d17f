package domain

import "time"

// ReservationStatus is the lifecycle state of a seat reservation.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "RESERVED"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

// SeatReservation is the hold one saga places on a set of seats. At most one
// active (RESERVED or CONFIRMED) reservation exists per correlation id, and a
// seat belongs to at most one active reservation at a time.
type SeatReservation struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	FlightID      string            `json:"flight_id"`
	SeatClass     string            `json:"seat_class"`
	SeatIDs       []string          `json:"seat_ids"`
	Status        ReservationStatus `json:"status"`
	ExpiresAt     time.Time         `json:"expires_at"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Active reports whether the reservation currently holds its seats.
func (r *SeatReservation) Active() bool {
	return r.Status == ReservationStatusReserved || r.Status == ReservationStatusConfirmed
}

// ExpiredAt reports whether an unconfirmed reservation has passed its hold
// window at the given instant.
func (r *SeatReservation) ExpiredAt(now time.Time) bool {
	return r.Status == ReservationStatusReserved && now.After(r.ExpiresAt)
}
