package repository

import (
	"context"
	"time"

	"github.com/skyfare/FlightBookingGo/internal/domain"
)

// SagaStore defines persistence for saga transactions. Records survive process
// restarts and are never deleted; they are the audit trail of every booking
// attempt.
type SagaStore interface {
	// Create inserts a new saga transaction in STARTED state.
	Create(ctx context.Context, tx *domain.SagaTransaction) error

	// Update persists the current state of an existing transaction.
	Update(ctx context.Context, tx *domain.SagaTransaction) error

	// GetByCorrelationID retrieves one transaction, or apperrors.ErrNotFound.
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.SagaTransaction, error)

	// ListRecent returns the most recently updated transactions, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.SagaTransaction, error)
}

// ReservationStore defines the read side of seat reservations. Writes go
// through the inventory service's row-locking transactions, not through this
// interface.
type ReservationStore interface {
	// GetByCorrelationID retrieves the reservation for a correlation id,
	// or apperrors.ErrNotFound.
	GetByCorrelationID(ctx context.Context, correlationID string) (*domain.SeatReservation, error)

	// GetActiveByCorrelationID retrieves the reservation only if it still
	// holds its seats (RESERVED or CONFIRMED), or apperrors.ErrNotFound.
	GetActiveByCorrelationID(ctx context.Context, correlationID string) (*domain.SeatReservation, error)

	// ListExpired returns unconfirmed reservations whose hold window passed
	// before the given instant.
	ListExpired(ctx context.Context, now time.Time) ([]domain.SeatReservation, error)
}

// ExecutionLogStore defines the append-only execution log. Entries are never
// mutated or deleted.
type ExecutionLogStore interface {
	// Append writes one entry and fills in its assigned ID and timestamp.
	Append(ctx context.Context, entry *domain.ExecutionLogEntry) error

	// ListByCorrelationID returns all entries for a saga in append order.
	ListByCorrelationID(ctx context.Context, correlationID string) ([]domain.ExecutionLogEntry, error)
}
