package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/internal/saga"
	"github.com/skyfare/FlightBookingGo/pkg/httputil"
	"github.com/skyfare/FlightBookingGo/pkg/validator"
)

// SagaHandler handles HTTP requests for booking saga endpoints.
type SagaHandler struct {
	orchestrator *saga.Orchestrator
	status       *saga.StatusService
	logger       *slog.Logger
}

// NewSagaHandler creates a new booking saga HTTP handler.
func NewSagaHandler(orchestrator *saga.Orchestrator, status *saga.StatusService, logger *slog.Logger) *SagaHandler {
	return &SagaHandler{
		orchestrator: orchestrator,
		status:       status,
		logger:       logger,
	}
}

// --- Request DTOs ---

// PassengerRequest is one traveller in a booking request.
type PassengerRequest struct {
	FullName string `json:"full_name" validate:"required,min=2,max=200"`
}

// CreateBookingRequest is the JSON request body for starting a booking saga.
// FailureInjection is a test-only hook and is ignored unless the service was
// started with it enabled.
type CreateBookingRequest struct {
	FlightID              string             `json:"flight_id" validate:"required"`
	SeatClass             string             `json:"seat_class" validate:"required,oneof=economy business first"`
	Passengers            []PassengerRequest `json:"passengers" validate:"required,min=1,max=9,dive"`
	ContactEmail          string             `json:"contact_email" validate:"required,email"`
	UserID                string             `json:"user_id" validate:"required"`
	PaymentMethod         string             `json:"payment_method" validate:"required,oneof=card points corporate"`
	FareAmount            int64              `json:"fare_amount" validate:"required,gt=0"`
	Currency              string             `json:"currency" validate:"required,len=3"`
	LoyaltyPointsToRedeem int                `json:"loyalty_points_to_redeem" validate:"gte=0"`
	FailureInjection      map[string]bool    `json:"failure_injection,omitempty"`
}

// --- Handlers ---

// CreateBooking handles POST /api/v1/bookings. It runs the booking saga to a
// terminal state and always returns the full saga result: 201 when the
// booking was confirmed, 422 when the saga failed and was compensated.
func (h *SagaHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CreateBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	passengers := make([]domain.Passenger, len(req.Passengers))
	for i, p := range req.Passengers {
		passengers[i] = domain.Passenger{FullName: p.FullName}
	}

	intent := &domain.BookingIntent{
		FlightID:              req.FlightID,
		SeatClass:             req.SeatClass,
		Passengers:            passengers,
		ContactEmail:          req.ContactEmail,
		UserID:                req.UserID,
		PaymentMethod:         req.PaymentMethod,
		FareAmount:            req.FareAmount,
		Currency:              req.Currency,
		LoyaltyPointsToRedeem: req.LoyaltyPointsToRedeem,
	}

	var injection domain.FailureInjection
	if len(req.FailureInjection) > 0 {
		injection = make(domain.FailureInjection, len(req.FailureInjection))
		for step, fail := range req.FailureInjection {
			injection[domain.StepName(step)] = fail
		}
	}

	result, err := h.orchestrator.StartSaga(r.Context(), intent, injection)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	status := http.StatusCreated
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: result})
}

// GetBookingStatus handles GET /api/v1/bookings/{correlationID}.
func (h *SagaHandler) GetBookingStatus(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if correlationID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "correlation id is required"},
		})
		return
	}

	tx, err := h.status.GetSagaStatus(r.Context(), correlationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tx})
}

// GetExecutionLog handles GET /api/v1/bookings/{correlationID}/log. An
// unknown correlation id yields an empty history.
func (h *SagaHandler) GetExecutionLog(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if correlationID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "correlation id is required"},
		})
		return
	}

	entries, err := h.status.GetExecutionLog(r.Context(), correlationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: entries})
}

// ListBookings handles GET /api/v1/bookings.
func (h *SagaHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "limit must be between 1 and 200"},
			})
			return
		}
		limit = parsed
	}

	txs, err := h.status.ListRecent(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if txs == nil {
		txs = []domain.SagaTransaction{}
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: txs})
}
