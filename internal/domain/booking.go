package domain

// Passenger is one traveller on a booking intent.
type Passenger struct {
	FullName string `json:"full_name" validate:"required,min=2,max=200"`
}

// BookingIntent is the caller's request to book a flight. It travels intact
// to every step participant; each participant reads only the fields it needs.
type BookingIntent struct {
	FlightID              string      `json:"flight_id" validate:"required"`
	SeatClass             string      `json:"seat_class" validate:"required,oneof=economy business first"`
	Passengers            []Passenger `json:"passengers" validate:"required,min=1,max=9,dive"`
	ContactEmail          string      `json:"contact_email" validate:"required,email"`
	UserID                string      `json:"user_id" validate:"required"`
	PaymentMethod         string      `json:"payment_method" validate:"required,oneof=card points corporate"`
	FareAmount            int64       `json:"fare_amount" validate:"required,gt=0"`
	Currency              string      `json:"currency" validate:"required,len=3"`
	LoyaltyPointsToRedeem int         `json:"loyalty_points_to_redeem" validate:"gte=0"`
}

// PassengerCount returns the number of seats the intent requires.
func (b *BookingIntent) PassengerCount() int {
	return len(b.Passengers)
}

// CompensationRecord is the outcome of one compensation call.
type CompensationRecord struct {
	Step    StepName `json:"step"`
	Success bool     `json:"success"`
	Detail  string   `json:"detail,omitempty"`
}

// SagaResult is what every StartSaga caller receives, success or not. On
// failure it carries enough detail to render a specific message: which step
// failed, why, and exactly which reversals ran.
type SagaResult struct {
	Success                bool                 `json:"success"`
	CorrelationID          string               `json:"correlation_id"`
	StepsCompleted         int                  `json:"steps_completed"`
	BookingReference       string               `json:"booking_reference,omitempty"`
	FailedStep             StepName             `json:"failed_step,omitempty"`
	ErrorKind              string               `json:"error_kind,omitempty"`
	ErrorMessage           string               `json:"error_message,omitempty"`
	Compensations          []CompensationRecord `json:"compensations"`
	CompensationsSucceeded int                  `json:"compensations_succeeded"`
	CompensationsFailed    int                  `json:"compensations_failed"`
}
