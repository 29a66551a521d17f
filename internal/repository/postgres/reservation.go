package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/pkg/database"
	apperrors "github.com/skyfare/FlightBookingGo/pkg/errors"
)

const reservationColumns = `id, correlation_id, flight_id, seat_class, seat_ids, status, expires_at, created_at, updated_at`

// ReservationRepository implements repository.ReservationStore using
// PostgreSQL. Seat-locking writes live in the inventory service; this
// repository only reads.
type ReservationRepository struct {
	pool database.DBTX
}

// NewReservationRepository creates a new PostgreSQL-backed reservation store.
func NewReservationRepository(pool database.DBTX) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// GetByCorrelationID retrieves the reservation for a correlation id.
func (r *ReservationRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.SeatReservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM seat_reservations
		WHERE correlation_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "GetReservation", query)
	res, err := scanReservation(r.pool.QueryRow(ctx, query, correlationID))
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reservation", correlationID)
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}

	return res, nil
}

// GetActiveByCorrelationID retrieves the reservation only if it still holds
// its seats.
func (r *ReservationRepository) GetActiveByCorrelationID(ctx context.Context, correlationID string) (*domain.SeatReservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM seat_reservations
		WHERE correlation_id = $1 AND status IN ('RESERVED', 'CONFIRMED')`

	ctx, end := database.TraceQuery(ctx, "GetActiveReservation", query)
	res, err := scanReservation(r.pool.QueryRow(ctx, query, correlationID))
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reservation", correlationID)
		}
		return nil, fmt.Errorf("get active reservation: %w", err)
	}

	return res, nil
}

// ListExpired returns unconfirmed reservations whose hold window has passed.
func (r *ReservationRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.SeatReservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM seat_reservations
		WHERE status = 'RESERVED' AND expires_at < $1
		ORDER BY expires_at`

	ctx, end := database.TraceQuery(ctx, "ListExpiredReservations", query)
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	var reservations []domain.SeatReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			end(err)
			return nil, fmt.Errorf("scan expired reservation: %w", err)
		}
		reservations = append(reservations, *res)
	}
	end(rows.Err())
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired reservations: %w", err)
	}

	return reservations, nil
}

// scanReservation scans one row into a domain reservation.
func scanReservation(row pgx.Row) (*domain.SeatReservation, error) {
	var res domain.SeatReservation
	err := row.Scan(
		&res.ID,
		&res.CorrelationID,
		&res.FlightID,
		&res.SeatClass,
		&res.SeatIDs,
		&res.Status,
		&res.ExpiresAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
