package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/pkg/database"
)

func newLogTestRepo(t *testing.T) (*ExecutionLogRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewExecutionLogRepository(mock)
	return repo, mock
}

func sampleLogEntry() *domain.ExecutionLogEntry {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.ExecutionLogEntry{
		CorrelationID:  "corr-001",
		StepName:       domain.StepReserveSeat,
		Actor:          domain.ActorOrchestrator,
		Level:          domain.LogLevelInfo,
		Message:        "executing ReserveSeat",
		IsCompensation: false,
		CreatedAt:      now,
	}
}

func logColumns() []string {
	return []string{
		"id", "correlation_id", "step_name", "actor",
		"level", "message", "is_compensation", "created_at",
	}
}

func TestExecutionLogRepository_Append_Success(t *testing.T) {
	repo, mock := newLogTestRepo(t)
	defer mock.Close()

	entry := sampleLogEntry()

	mock.ExpectQuery("INSERT INTO saga_execution_log").
		WithArgs(
			entry.CorrelationID, entry.StepName, entry.Actor, entry.Level,
			entry.Message, entry.IsCompensation, entry.CreatedAt,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(42)))

	err := repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, int64(42), entry.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionLogRepository_Append_FillsCreatedAt(t *testing.T) {
	repo, mock := newLogTestRepo(t)
	defer mock.Close()

	entry := sampleLogEntry()
	entry.CreatedAt = time.Time{}

	mock.ExpectQuery("INSERT INTO saga_execution_log").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))

	err := repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionLogRepository_Append_QueryError(t *testing.T) {
	repo, mock := newLogTestRepo(t)
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO saga_execution_log").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New("connection reset"))

	err := repo.Append(context.Background(), sampleLogEntry())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "append execution log entry")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionLogRepository_ListByCorrelationID_Success(t *testing.T) {
	repo, mock := newLogTestRepo(t)
	defer mock.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT (.+) FROM saga_execution_log").
		WithArgs("corr-001").
		WillReturnRows(pgxmock.NewRows(logColumns()).
			AddRow(int64(1), "corr-001", "ReserveSeat", "orchestrator", "info", "executing ReserveSeat", false, now).
			AddRow(int64(2), "corr-001", "ReserveSeat", "orchestrator", "success", "ReserveSeat completed", false, now))

	entries, err := repo.ListByCorrelationID(context.Background(), "corr-001")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, domain.LogLevelSuccess, entries[1].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecutionLogRepository_ListByCorrelationID_Empty(t *testing.T) {
	repo, mock := newLogTestRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM saga_execution_log").
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows(logColumns()))

	entries, err := repo.ListByCorrelationID(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, mock.ExpectationsWereMet())
}
