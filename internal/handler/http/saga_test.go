package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/internal/event"
	"github.com/skyfare/FlightBookingGo/internal/saga"
	"github.com/skyfare/FlightBookingGo/internal/stepclient"
	apperrors "github.com/skyfare/FlightBookingGo/pkg/errors"
	pkgkafka "github.com/skyfare/FlightBookingGo/pkg/kafka"
)

// --- Fakes ---

// scriptedCaller returns scripted outcomes per step and succeeds otherwise.
type scriptedCaller struct {
	results map[domain.StepName]stepclient.Outcome
}

func (s *scriptedCaller) Execute(_ context.Context, step domain.StepDefinition, _ string, _ *domain.BookingIntent) stepclient.Outcome {
	if out, ok := s.results[step.Name]; ok {
		return out
	}
	detail := map[string]any{"success": true}
	if step.Name == domain.StepConfirmBooking {
		detail["booking_reference"] = "BK-2026-0001"
	}
	return stepclient.Outcome{Success: true, Detail: detail}
}

func (s *scriptedCaller) Compensate(_ context.Context, _ domain.StepDefinition, _ string) stepclient.Outcome {
	return stepclient.Outcome{Success: true}
}

func (s *scriptedCaller) Finalize(_ context.Context, _ domain.StepDefinition, _ string) stepclient.Outcome {
	return stepclient.Outcome{Success: true, Detail: map[string]any{"success": true, "status": "CONFIRMED"}}
}

// fakeSagaStore holds at most one transaction.
type fakeSagaStore struct {
	current *domain.SagaTransaction
}

func (f *fakeSagaStore) Create(_ context.Context, tx *domain.SagaTransaction) error {
	cp := *tx
	f.current = &cp
	return nil
}

func (f *fakeSagaStore) Update(_ context.Context, tx *domain.SagaTransaction) error {
	cp := *tx
	f.current = &cp
	return nil
}

func (f *fakeSagaStore) GetByCorrelationID(_ context.Context, correlationID string) (*domain.SagaTransaction, error) {
	if f.current == nil || f.current.CorrelationID != correlationID {
		return nil, apperrors.NotFound("saga", correlationID)
	}
	return f.current, nil
}

func (f *fakeSagaStore) ListRecent(_ context.Context, _ int) ([]domain.SagaTransaction, error) {
	if f.current == nil {
		return nil, nil
	}
	return []domain.SagaTransaction{*f.current}, nil
}

// fakeLogStore collects entries.
type fakeLogStore struct {
	entries []domain.ExecutionLogEntry
}

func (f *fakeLogStore) Append(_ context.Context, entry *domain.ExecutionLogEntry) error {
	entry.ID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLogStore) ListByCorrelationID(_ context.Context, correlationID string) ([]domain.ExecutionLogEntry, error) {
	var out []domain.ExecutionLogEntry
	for _, e := range f.entries {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func testSagaHandler(caller *scriptedCaller, store *fakeSagaStore, logStore *fakeLogStore) *SagaHandler {
	logger := testLogger()
	orchestrator := saga.NewOrchestrator(store, logStore, caller, testEventProducer(), logger, false)
	status := saga.NewStatusService(store, logStore, nil, logger)
	return NewSagaHandler(orchestrator, status, logger)
}

func testSagaRouter(h *SagaHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/bookings", h.CreateBooking)
	r.Get("/api/v1/bookings", h.ListBookings)
	r.Get("/api/v1/bookings/{correlationID}", h.GetBookingStatus)
	r.Get("/api/v1/bookings/{correlationID}/log", h.GetExecutionLog)
	return r
}

func validBookingBody() map[string]any {
	return map[string]any{
		"flight_id":      "SF-1042",
		"seat_class":     "economy",
		"passengers":     []map[string]string{{"full_name": "Ada Lovelace"}},
		"contact_email":  "ada@example.com",
		"user_id":        "user-001",
		"payment_method": "card",
		"fare_amount":    14900,
		"currency":       "USD",
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// --- CreateBooking ---

func TestCreateBooking_Success(t *testing.T) {
	h := testSagaHandler(&scriptedCaller{}, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	rec := postJSON(t, router, "/api/v1/bookings", validBookingBody())

	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data domain.SagaResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Success)
	assert.NotEmpty(t, resp.Data.CorrelationID)
	assert.Equal(t, 4, resp.Data.StepsCompleted)
	assert.Equal(t, "BK-2026-0001", resp.Data.BookingReference)
}

func TestCreateBooking_SagaFailureReturns422WithFullResult(t *testing.T) {
	caller := &scriptedCaller{
		results: map[domain.StepName]stepclient.Outcome{
			domain.StepAuthorizePayment: {
				ErrorKind: stepclient.ErrorKindRejected,
				Err:       "payment: card declined",
			},
		},
	}
	h := testSagaHandler(caller, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	rec := postJSON(t, router, "/api/v1/bookings", validBookingBody())

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Data domain.SagaResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Success)
	assert.Equal(t, domain.StepAuthorizePayment, resp.Data.FailedStep)
	assert.Contains(t, resp.Data.ErrorMessage, "card declined")
	require.Len(t, resp.Data.Compensations, 1)
	assert.Equal(t, domain.StepReserveSeat, resp.Data.Compensations[0].Step)
}

func TestCreateBooking_InvalidJSON(t *testing.T) {
	h := testSagaHandler(&scriptedCaller{}, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_INPUT")
}

func TestCreateBooking_ValidationFailure(t *testing.T) {
	h := testSagaHandler(&scriptedCaller{}, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	body := validBookingBody()
	delete(body, "flight_id")
	body["seat_class"] = "premium-plus"

	rec := postJSON(t, router, "/api/v1/bookings", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

// --- GetBookingStatus ---

func TestGetBookingStatus_Found(t *testing.T) {
	store := &fakeSagaStore{}
	h := testSagaHandler(&scriptedCaller{}, store, &fakeLogStore{})
	router := testSagaRouter(h)

	rec := postJSON(t, router, "/api/v1/bookings", validBookingBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	cid := store.current.CorrelationID

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/"+cid, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data domain.SagaTransaction `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, cid, resp.Data.CorrelationID)
	assert.Equal(t, domain.SagaStatusCompleted, resp.Data.Status)
}

func TestGetBookingStatus_UnknownCorrelationID(t *testing.T) {
	h := testSagaHandler(&scriptedCaller{}, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/corr-404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

// --- GetExecutionLog ---

func TestGetExecutionLog_UnknownIDReturnsEmptyHistory(t *testing.T) {
	h := testSagaHandler(&scriptedCaller{}, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/corr-404/log", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.ExecutionLogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data)
}

func TestGetExecutionLog_AfterFailedSaga(t *testing.T) {
	caller := &scriptedCaller{
		results: map[domain.StepName]stepclient.Outcome{
			domain.StepConfirmBooking: {
				ErrorKind: stepclient.ErrorKindTransient,
				Err:       "call booking service: connection refused",
			},
		},
	}
	store := &fakeSagaStore{}
	logStore := &fakeLogStore{}
	h := testSagaHandler(caller, store, logStore)
	router := testSagaRouter(h)

	rec := postJSON(t, router, "/api/v1/bookings", validBookingBody())
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	cid := store.current.CorrelationID

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/"+cid+"/log", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []domain.ExecutionLogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data)

	var compensations int
	for _, e := range resp.Data {
		if e.IsCompensation {
			compensations++
		}
	}
	assert.Greater(t, compensations, 0)
}

// --- ListBookings ---

func TestListBookings_InvalidLimit(t *testing.T) {
	h := testSagaHandler(&scriptedCaller{}, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings?limit=0", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBookings_EmptyIsAnArray(t *testing.T) {
	h := testSagaHandler(&scriptedCaller{}, &fakeSagaStore{}, &fakeLogStore{})
	router := testSagaRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}
