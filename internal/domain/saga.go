package domain

import (
	"time"
)

// SagaStatus is the lifecycle state of one saga transaction.
type SagaStatus string

const (
	SagaStatusStarted      SagaStatus = "STARTED"
	SagaStatusInProgress   SagaStatus = "IN_PROGRESS"
	SagaStatusCompleted    SagaStatus = "COMPLETED"
	SagaStatusFailed       SagaStatus = "FAILED"
	SagaStatusCompensating SagaStatus = "COMPENSATING"
	SagaStatusCompensated  SagaStatus = "COMPENSATED"
)

// StepName identifies one of the four booking saga steps. The set is closed;
// there is no string-keyed dispatch anywhere in the orchestrator.
type StepName string

const (
	StepReserveSeat      StepName = "ReserveSeat"
	StepAuthorizePayment StepName = "AuthorizePayment"
	StepAwardMiles       StepName = "AwardMiles"
	StepConfirmBooking   StepName = "ConfirmBooking"
)

// Participant names the remote service owning a step's action and compensation.
type Participant string

const (
	ParticipantInventory Participant = "inventory"
	ParticipantPayment   Participant = "payment"
	ParticipantLoyalty   Participant = "loyalty"
	ParticipantBooking   Participant = "booking"
)

// StepDefinition is the static configuration of one saga step. FinalizePath,
// when set, is an extra call made once after the whole saga has succeeded; it
// pins a resource the action only held provisionally.
type StepDefinition struct {
	Name             StepName
	Participant      Participant
	ActionPath       string
	CompensationPath string
	FinalizePath     string
}

// BookingSteps returns the fixed, ordered step list. The order encodes a
// business priority: never charge money or award points for a seat that
// cannot be held, and never award points for a payment that was not
// authorized. Compensations run in the exact reverse of this order.
func BookingSteps() []StepDefinition {
	return []StepDefinition{
		{
			Name:             StepReserveSeat,
			Participant:      ParticipantInventory,
			ActionPath:       "/api/v1/inventory/reserve",
			CompensationPath: "/api/v1/inventory/release",
			// The reserve action only holds the seats until the TTL; the
			// confirm call pins them once the booking is final.
			FinalizePath: "/api/v1/inventory/confirm",
		},
		{
			Name:             StepAuthorizePayment,
			Participant:      ParticipantPayment,
			ActionPath:       "/api/v1/payments/authorize",
			CompensationPath: "/api/v1/payments/cancel",
		},
		{
			Name:             StepAwardMiles,
			Participant:      ParticipantLoyalty,
			ActionPath:       "/api/v1/miles/award",
			CompensationPath: "/api/v1/miles/reverse",
		},
		{
			Name:             StepConfirmBooking,
			Participant:      ParticipantBooking,
			ActionPath:       "/api/v1/bookings/confirm",
			CompensationPath: "/api/v1/bookings/cancel",
		},
	}
}

// FailureInjection forces named steps to fail without calling the remote
// participant. Test-only hook; production callers never set it.
type FailureInjection map[StepName]bool

// ShouldFail reports whether the given step is injected to fail.
func (f FailureInjection) ShouldFail(step StepName) bool {
	if f == nil {
		return false
	}
	return f[step]
}

// SagaTransaction is the durable record of one booking attempt. It is created
// once by the orchestrator, mutated only by the orchestrator, and never
// deleted.
type SagaTransaction struct {
	CorrelationID        string     `json:"correlation_id"`
	Status               SagaStatus `json:"status"`
	StepsCompleted       int        `json:"steps_completed"`
	FailedStep           StepName   `json:"failed_step,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	CompensationExecuted bool       `json:"compensation_executed"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewSagaTransaction creates a transaction in STARTED state.
func NewSagaTransaction(correlationID string) *SagaTransaction {
	now := time.Now().UTC()
	return &SagaTransaction{
		CorrelationID: correlationID,
		Status:        SagaStatusStarted,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Advance records one more completed forward step.
func (t *SagaTransaction) Advance() {
	t.StepsCompleted++
	t.Status = SagaStatusInProgress
	t.UpdatedAt = time.Now().UTC()
}

// Complete marks the saga as fully successful.
func (t *SagaTransaction) Complete() {
	t.Status = SagaStatusCompleted
	t.UpdatedAt = time.Now().UTC()
}

// Fail records the failing step and its cause.
func (t *SagaTransaction) Fail(step StepName, message string) {
	t.Status = SagaStatusFailed
	t.FailedStep = step
	t.ErrorMessage = message
	t.UpdatedAt = time.Now().UTC()
}

// BeginCompensation marks the start of the (single) compensation pass.
func (t *SagaTransaction) BeginCompensation() {
	t.Status = SagaStatusCompensating
	t.UpdatedAt = time.Now().UTC()
}

// FinishCompensation marks the compensation pass as done. The saga is terminal
// after this regardless of how many individual compensations succeeded.
func (t *SagaTransaction) FinishCompensation() {
	t.Status = SagaStatusCompensated
	t.CompensationExecuted = true
	t.UpdatedAt = time.Now().UTC()
}

// Terminal reports whether the saga can no longer change state.
func (t *SagaTransaction) Terminal() bool {
	switch t.Status {
	case SagaStatusCompleted, SagaStatusCompensated, SagaStatusFailed:
		return true
	default:
		return false
	}
}
