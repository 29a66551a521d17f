package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/internal/event"
	"github.com/skyfare/FlightBookingGo/internal/repository"
	"github.com/skyfare/FlightBookingGo/pkg/database"
	apperrors "github.com/skyfare/FlightBookingGo/pkg/errors"
)

// seatLettersPerRow is the cabin layout used when seeding a flight.
const seatLettersPerRow = "ABCDEF"

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations, raised when two sagas race to reserve under one correlation id.
const uniqueViolation = "23505"

// Service implements the seat inventory participant: the ReserveSeat step
// action, its release compensation, and the supporting flight seeding and
// expiry machinery.
type Service struct {
	reservations repository.ReservationStore
	pool         database.DBTX
	producer     *event.Producer
	logger       *slog.Logger
	holdTTL      time.Duration
}

// NewService creates a new inventory service. holdTTL is how long an
// unconfirmed reservation keeps its seats.
func NewService(
	reservations repository.ReservationStore,
	pool database.DBTX,
	producer *event.Producer,
	logger *slog.Logger,
	holdTTL time.Duration,
) *Service {
	return &Service{
		reservations: reservations,
		pool:         pool,
		producer:     producer,
		logger:       logger,
		holdTTL:      holdTTL,
	}
}

// Reserve atomically holds the requested number of seats for a correlation id.
// It is idempotent: a repeat call for a correlation id that already holds an
// active reservation returns that reservation without touching inventory.
// Seats are assigned lowest seat number first, so two requests against the
// same remaining inventory always contend for the same rows and exactly one
// wins the last seat.
func (s *Service) Reserve(ctx context.Context, correlationID, flightID, seatClass string, count int) (*domain.SeatReservation, error) {
	if correlationID == "" {
		return nil, apperrors.InvalidInput("correlation_id is required")
	}
	if flightID == "" {
		return nil, apperrors.InvalidInput("flight_id is required")
	}
	if count <= 0 {
		return nil, apperrors.InvalidInput("seat count must be positive")
	}

	existing, err := s.reservations.GetActiveByCorrelationID(ctx, correlationID)
	if err == nil {
		s.logger.InfoContext(ctx, "reservation already held, returning existing",
			slog.String("correlation_id", correlationID),
			slog.String("reservation_id", existing.ID),
		)
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check existing reservation: %w", err)
	}

	res, err := s.reserveSeats(ctx, correlationID, flightID, seatClass, count)
	if err != nil {
		// A concurrent call under the same correlation id won the insert
		// race; its reservation is the one to return.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return s.reservations.GetActiveByCorrelationID(ctx, correlationID)
		}
		return nil, err
	}

	if err := s.producer.PublishSeatsReserved(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.reserved event",
			slog.String("reservation_id", res.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "seats reserved",
		slog.String("correlation_id", correlationID),
		slog.String("flight_id", flightID),
		slog.String("seat_class", seatClass),
		slog.Any("seat_ids", res.SeatIDs),
	)

	return res, nil
}

// reserveSeats runs the seat-locking transaction.
func (s *Service) reserveSeats(ctx context.Context, correlationID, flightID, seatClass string, count int) (*domain.SeatReservation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin reservation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the lowest-numbered free seats. SKIP LOCKED keeps concurrent
	// reservations from queueing on each other's rows.
	lockQuery := `
		SELECT seat_number
		FROM seats
		WHERE flight_id = $1 AND seat_class = $2 AND reservation_id IS NULL
		ORDER BY seat_number
		FOR UPDATE SKIP LOCKED
		LIMIT $3`

	rows, err := tx.Query(ctx, lockQuery, flightID, seatClass, count)
	if err != nil {
		return nil, fmt.Errorf("lock free seats: %w", err)
	}

	var seatIDs []string
	for rows.Next() {
		var seatNumber string
		if err := rows.Scan(&seatNumber); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan free seat: %w", err)
		}
		seatIDs = append(seatIDs, seatNumber)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate free seats: %w", err)
	}

	if len(seatIDs) < count {
		var available int
		countQuery := `
			SELECT COUNT(*)
			FROM seats
			WHERE flight_id = $1 AND seat_class = $2 AND reservation_id IS NULL`
		if err := tx.QueryRow(ctx, countQuery, flightID, seatClass).Scan(&available); err != nil {
			return nil, fmt.Errorf("count available seats: %w", err)
		}
		return nil, apperrors.SeatsUnavailable(flightID, seatClass, count, available)
	}

	now := time.Now().UTC()
	res := &domain.SeatReservation{
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		FlightID:      flightID,
		SeatClass:     seatClass,
		SeatIDs:       seatIDs,
		Status:        domain.ReservationStatusReserved,
		ExpiresAt:     now.Add(s.holdTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	insertQuery := `
		INSERT INTO seat_reservations (id, correlation_id, flight_id, seat_class, seat_ids, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, insertQuery,
		res.ID,
		res.CorrelationID,
		res.FlightID,
		res.SeatClass,
		res.SeatIDs,
		res.Status,
		res.ExpiresAt,
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create reservation record: %w", err)
	}

	assignQuery := `
		UPDATE seats
		SET reservation_id = $1, updated_at = NOW()
		WHERE flight_id = $2 AND seat_number = ANY($3)`

	if _, err := tx.Exec(ctx, assignQuery, res.ID, flightID, res.SeatIDs); err != nil {
		return nil, fmt.Errorf("assign seats to reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reservation transaction: %w", err)
	}

	return res, nil
}

// Release frees the seats held for a correlation id. Releasing a correlation
// id with no active reservation is a no-op, not an error: the compensation
// path must stay safe to call whether or not the forward action got anywhere.
// It returns the cancelled reservation, or nil when there was nothing to
// release.
func (s *Service) Release(ctx context.Context, correlationID string) (*domain.SeatReservation, error) {
	if correlationID == "" {
		return nil, apperrors.InvalidInput("correlation_id is required")
	}

	res, err := s.transitionReservation(ctx, correlationID, domain.ReservationStatusCancelled)
	if err != nil {
		return nil, err
	}
	if res == nil {
		s.logger.InfoContext(ctx, "nothing to release",
			slog.String("correlation_id", correlationID),
		)
		return nil, nil
	}

	if err := s.producer.PublishSeatsReleased(ctx, res); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish inventory.released event",
			slog.String("reservation_id", res.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "reservation released",
		slog.String("correlation_id", correlationID),
		slog.String("reservation_id", res.ID),
		slog.Int("seats_freed", len(res.SeatIDs)),
	)

	return res, nil
}

// Confirm pins the reservation so the expiry sweeper leaves it alone.
// Confirming an already confirmed reservation is a no-op.
func (s *Service) Confirm(ctx context.Context, correlationID string) (*domain.SeatReservation, error) {
	if correlationID == "" {
		return nil, apperrors.InvalidInput("correlation_id is required")
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin confirm transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := lockActiveReservation(ctx, tx, correlationID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperrors.NotFound("reservation", correlationID)
	}

	if res.Status == domain.ReservationStatusConfirmed {
		return res, nil
	}

	statusQuery := `
		UPDATE seat_reservations
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	if _, err := tx.Exec(ctx, statusQuery, domain.ReservationStatusConfirmed, res.ID); err != nil {
		return nil, fmt.Errorf("update reservation status to confirmed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm transaction: %w", err)
	}

	res.Status = domain.ReservationStatusConfirmed

	s.logger.InfoContext(ctx, "reservation confirmed",
		slog.String("correlation_id", correlationID),
		slog.String("reservation_id", res.ID),
	)

	return res, nil
}

// GetReservation retrieves the reservation for a correlation id.
func (s *Service) GetReservation(ctx context.Context, correlationID string) (*domain.SeatReservation, error) {
	res, err := s.reservations.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// InitializeFlight seeds the seat map for a flight. Rows are laid out first
// class first, then business, then economy, six seats per row. Seeding is
// idempotent; seats that already exist are left untouched.
func (s *Service) InitializeFlight(ctx context.Context, flightID string, seatCounts map[string]int) (int, error) {
	if flightID == "" {
		return 0, apperrors.InvalidInput("flight_id is required")
	}

	var seatNumbers, seatClasses []string
	row := 1
	letter := 0
	for _, class := range []string{"first", "business", "economy"} {
		n := seatCounts[class]
		if n < 0 {
			return 0, apperrors.InvalidInput(fmt.Sprintf("seat count for %s must be non-negative", class))
		}
		for i := 0; i < n; i++ {
			seatNumbers = append(seatNumbers, fmt.Sprintf("%02d%c", row, seatLettersPerRow[letter]))
			seatClasses = append(seatClasses, class)
			letter++
			if letter == len(seatLettersPerRow) {
				letter = 0
				row++
			}
		}
		// A class never shares a row with the next one.
		if letter != 0 {
			letter = 0
			row++
		}
	}

	if len(seatNumbers) == 0 {
		return 0, apperrors.InvalidInput("at least one seat is required")
	}

	query := `
		INSERT INTO seats (flight_id, seat_number, seat_class)
		SELECT $1, n, c FROM unnest($2::text[], $3::text[]) AS t(n, c)
		ON CONFLICT (flight_id, seat_number) DO NOTHING`

	ct, err := s.pool.Exec(ctx, query, flightID, seatNumbers, seatClasses)
	if err != nil {
		return 0, fmt.Errorf("seed flight seats: %w", err)
	}

	created := int(ct.RowsAffected())
	s.logger.InfoContext(ctx, "flight seat map initialized",
		slog.String("flight_id", flightID),
		slog.Int("seats_created", created),
		slog.Int("seats_requested", len(seatNumbers)),
	)

	return created, nil
}

// ExpireOverdue frees the seats of every reservation whose hold window has
// passed, marking each EXPIRED. It returns the number expired.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := s.reservations.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list expired reservations: %w", err)
	}

	expired := 0
	for i := range overdue {
		res, err := s.transitionReservation(ctx, overdue[i].CorrelationID, domain.ReservationStatusExpired)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to expire reservation",
				slog.String("reservation_id", overdue[i].ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if res == nil {
			// Released or confirmed between the list and the lock.
			continue
		}

		expired++
		if err := s.producer.PublishSeatsExpired(ctx, res); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish inventory.expired event",
				slog.String("reservation_id", res.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return expired, nil
}

// transitionReservation frees a reservation's seats and moves it to the given
// terminal status under a row lock. It returns nil with no error when the
// correlation id holds no reservation eligible for the transition.
func (s *Service) transitionReservation(ctx context.Context, correlationID string, to domain.ReservationStatus) (*domain.SeatReservation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin release transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := lockActiveReservation(ctx, tx, correlationID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	if to == domain.ReservationStatusExpired && res.Status != domain.ReservationStatusReserved {
		// Confirmed reservations never expire.
		return nil, nil
	}

	freeQuery := `
		UPDATE seats
		SET reservation_id = NULL, updated_at = NOW()
		WHERE reservation_id = $1`

	if _, err := tx.Exec(ctx, freeQuery, res.ID); err != nil {
		return nil, fmt.Errorf("free reserved seats: %w", err)
	}

	statusQuery := `
		UPDATE seat_reservations
		SET status = $1, updated_at = NOW()
		WHERE id = $2`

	if _, err := tx.Exec(ctx, statusQuery, to, res.ID); err != nil {
		return nil, fmt.Errorf("update reservation status to %s: %w", to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit release transaction: %w", err)
	}

	res.Status = to
	return res, nil
}

// lockActiveReservation loads the correlation id's active reservation under
// FOR UPDATE, or nil when none exists.
func lockActiveReservation(ctx context.Context, tx pgx.Tx, correlationID string) (*domain.SeatReservation, error) {
	query := `
		SELECT id, correlation_id, flight_id, seat_class, seat_ids, status, expires_at, created_at, updated_at
		FROM seat_reservations
		WHERE correlation_id = $1 AND status IN ('RESERVED', 'CONFIRMED')
		FOR UPDATE`

	var res domain.SeatReservation
	err := tx.QueryRow(ctx, query, correlationID).Scan(
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}

	return &res, nil
}
