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

// SagaRepository implements repository.SagaStore using PostgreSQL.
type SagaRepository struct {
	pool database.DBTX
}

// NewSagaRepository creates a new PostgreSQL-backed saga transaction store.
func NewSagaRepository(pool database.DBTX) *SagaRepository {
	return &SagaRepository{pool: pool}
}

// Create inserts a new saga transaction.
func (r *SagaRepository) Create(ctx context.Context, tx *domain.SagaTransaction) error {
	query := `
		INSERT INTO saga_transactions (
			correlation_id, status, steps_completed, failed_step,
			error_message, compensation_executed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	ctx, end := database.TraceQuery(ctx, "CreateSagaTransaction", query)
	_, err := r.pool.Exec(ctx, query,
		tx.CorrelationID,
		tx.Status,
		tx.StepsCompleted,
		nullableString(string(tx.FailedStep)),
		nullableString(tx.ErrorMessage),
		tx.CompensationExecuted,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("insert saga transaction: %w", err)
	}

	return nil
}

// Update persists the current state of an existing saga transaction.
func (r *SagaRepository) Update(ctx context.Context, tx *domain.SagaTransaction) error {
	tx.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE saga_transactions
		SET status = $1, steps_completed = $2, failed_step = $3,
			error_message = $4, compensation_executed = $5, updated_at = $6
		WHERE correlation_id = $7`

	ctx, end := database.TraceQuery(ctx, "UpdateSagaTransaction", query)
	ct, err := r.pool.Exec(ctx, query,
		tx.Status,
		tx.StepsCompleted,
		nullableString(string(tx.FailedStep)),
		nullableString(tx.ErrorMessage),
		tx.CompensationExecuted,
		tx.UpdatedAt,
		tx.CorrelationID,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("update saga transaction: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("saga", tx.CorrelationID)
	}

	return nil
}

// GetByCorrelationID retrieves one saga transaction.
func (r *SagaRepository) GetByCorrelationID(ctx context.Context, correlationID string) (*domain.SagaTransaction, error) {
	query := `
		SELECT correlation_id, status, steps_completed, failed_step,
			error_message, compensation_executed, created_at, updated_at
		FROM saga_transactions
		WHERE correlation_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetSagaTransaction", query)
	row := r.pool.QueryRow(ctx, query, correlationID)

	tx, err := scanSagaTransaction(row)
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("saga", correlationID)
		}
		return nil, fmt.Errorf("get saga transaction: %w", err)
	}

	return tx, nil
}

// ListRecent returns the most recently updated saga transactions, newest first.
func (r *SagaRepository) ListRecent(ctx context.Context, limit int) ([]domain.SagaTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT correlation_id, status, steps_completed, failed_step,
			error_message, compensation_executed, created_at, updated_at
		FROM saga_transactions
		ORDER BY updated_at DESC
		LIMIT $1`

	ctx, end := database.TraceQuery(ctx, "ListRecentSagaTransactions", query)
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("list saga transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.SagaTransaction
	for rows.Next() {
		tx, err := scanSagaTransaction(rows)
		if err != nil {
			end(err)
			return nil, fmt.Errorf("scan saga transaction: %w", err)
		}
		txs = append(txs, *tx)
	}
	end(rows.Err())
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saga transactions: %w", err)
	}

	return txs, nil
}

// scanSagaTransaction scans one row into a domain transaction.
func scanSagaTransaction(row pgx.Row) (*domain.SagaTransaction, error) {
	var (
		tx           domain.SagaTransaction
		failedStep   *string
		errorMessage *string
	)

	err := row.Scan(
		&tx.CorrelationID,
		&tx.Status,
		&tx.StepsCompleted,
		&failedStep,
		&errorMessage,
		&tx.CompensationExecuted,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if failedStep != nil {
		tx.FailedStep = domain.StepName(*failedStep)
	}
	if errorMessage != nil {
		tx.ErrorMessage = *errorMessage
	}

	return &tx, nil
}

// nullableString converts an empty string to a NULL-able pointer.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
