package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/pkg/database"
)

// ExecutionLogRepository implements repository.ExecutionLogStore using
// PostgreSQL. The table is append-only; there is deliberately no update or
// delete operation.
type ExecutionLogRepository struct {
	pool database.DBTX
}

// NewExecutionLogRepository creates a new PostgreSQL-backed execution log.
func NewExecutionLogRepository(pool database.DBTX) *ExecutionLogRepository {
	return &ExecutionLogRepository{pool: pool}
}

// Append writes one entry and fills in its assigned ID.
func (r *ExecutionLogRepository) Append(ctx context.Context, entry *domain.ExecutionLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO saga_execution_log (
			correlation_id, step_name, actor, level, message, is_compensation, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	ctx, end := database.TraceQuery(ctx, "AppendExecutionLog", query)
	err := r.pool.QueryRow(ctx, query,
		entry.CorrelationID,
		entry.StepName,
		entry.Actor,
		entry.Level,
		entry.Message,
		entry.IsCompensation,
		entry.CreatedAt,
	).Scan(&entry.ID)
	end(err)
	if err != nil {
		return fmt.Errorf("append execution log entry: %w", err)
	}

	return nil
}

// ListByCorrelationID returns all entries for a saga in append order.
func (r *ExecutionLogRepository) ListByCorrelationID(ctx context.Context, correlationID string) ([]domain.ExecutionLogEntry, error) {
	query := `
		SELECT id, correlation_id, step_name, actor, level, message, is_compensation, created_at
		FROM saga_execution_log
		WHERE correlation_id = $1
		ORDER BY id`

	ctx, end := database.TraceQuery(ctx, "ListExecutionLog", query)
	rows, err := r.pool.Query(ctx, query, correlationID)
	if err != nil {
		end(err)
		return nil, fmt.Errorf("list execution log: %w", err)
	}
	defer rows.Close()

	var entries []domain.ExecutionLogEntry
	for rows.Next() {
		var e domain.ExecutionLogEntry
		if err := rows.Scan(
			&e.ID,
			&e.CorrelationID,
			&e.StepName,
			&e.Actor,
			&e.Level,
			&e.Message,
			&e.IsCompensation,
			&e.CreatedAt,
		); err != nil {
			end(err)
			return nil, fmt.Errorf("scan execution log entry: %w", err)
		}
		entries = append(entries, e)
	}
	end(rows.Err())
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate execution log: %w", err)
	}

	return entries, nil
}
