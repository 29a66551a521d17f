package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/internal/repository"
	"github.com/skyfare/FlightBookingGo/internal/statuscache"
	apperrors "github.com/skyfare/FlightBookingGo/pkg/errors"
)

// StatusService serves read-only saga queries. Status lookups go through a
// short-TTL Redis cache; the execution log is always read from the store.
type StatusService struct {
	sagas   repository.SagaStore
	execLog repository.ExecutionLogStore
	cache   *statuscache.Cache
	logger  *slog.Logger
}

// NewStatusService creates a status query service. cache may be nil, in which
// case every lookup hits the store.
func NewStatusService(
	sagas repository.SagaStore,
	execLog repository.ExecutionLogStore,
	cache *statuscache.Cache,
	logger *slog.Logger,
) *StatusService {
	return &StatusService{
		sagas:   sagas,
		execLog: execLog,
		cache:   cache,
		logger:  logger,
	}
}

// GetSagaStatus retrieves one saga transaction, or apperrors.ErrNotFound when
// the correlation id is unknown.
func (s *StatusService) GetSagaStatus(ctx context.Context, correlationID string) (*domain.SagaTransaction, error) {
	if s.cache != nil {
		tx, err := s.cache.Get(ctx, correlationID)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			// Cache faults degrade to store reads.
			s.logger.WarnContext(ctx, "saga status cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	tx, err := s.sagas.GetByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, tx); err != nil {
			s.logger.WarnContext(ctx, "saga status cache write failed",
				slog.String("error", err.Error()),
			)
		}
	}

	return tx, nil
}

// GetExecutionLog returns the full execution history for a correlation id in
// append order. An unknown correlation id yields an empty history, not an
// error; the log is the one query that stays answerable while a saga's
// transaction row is still being written.
func (s *StatusService) GetExecutionLog(ctx context.Context, correlationID string) ([]domain.ExecutionLogEntry, error) {
	entries, err := s.execLog.ListByCorrelationID(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("get execution log: %w", err)
	}
	if entries == nil {
		entries = []domain.ExecutionLogEntry{}
	}
	return entries, nil
}

// ListRecent returns the most recently updated sagas, newest first.
func (s *StatusService) ListRecent(ctx context.Context, limit int) ([]domain.SagaTransaction, error) {
	txs, err := s.sagas.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent sagas: %w", err)
	}
	return txs, nil
}
