package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skyfare/FlightBookingGo/internal/inventory"
	"github.com/skyfare/FlightBookingGo/pkg/httputil"
	"github.com/skyfare/FlightBookingGo/pkg/validator"
)

// InventoryHandler serves the seat inventory participant. The reserve,
// release and confirm endpoints speak the step protocol: flat JSON bodies
// with a success flag on 2xx, the standard error envelope otherwise.
type InventoryHandler struct {
	service *inventory.Service
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc *inventory.Service, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// ReserveSeatsRequest is the step action body for seat reservation.
type ReserveSeatsRequest struct {
	CorrelationID string `json:"correlation_id" validate:"required"`
	Booking       struct {
		FlightID   string             `json:"flight_id" validate:"required"`
		SeatClass  string             `json:"seat_class" validate:"required,oneof=economy business first"`
		Passengers []PassengerRequest `json:"passengers" validate:"required,min=1,max=9"`
	} `json:"booking" validate:"required"`
}

// CorrelationRequest is the body for release and confirm calls; the
// correlation id alone identifies the reservation.
type CorrelationRequest struct {
	CorrelationID string `json:"correlation_id" validate:"required"`
}

// InitializeFlightRequest is the JSON request body for seeding a flight's
// seat map.
type InitializeFlightRequest struct {
	FlightID string         `json:"flight_id" validate:"required"`
	Seats    map[string]int `json:"seats" validate:"required"`
}

// --- Handlers ---

// ReserveSeats handles POST /api/v1/inventory/reserve.
func (h *InventoryHandler) ReserveSeats(w http.ResponseWriter, r *http.Request) {
	var req ReserveSeatsRequest
	if !decodeStepRequest(w, r, &req) {
		return
	}

	res, err := h.service.Reserve(r.Context(), req.CorrelationID, req.Booking.FlightID, req.Booking.SeatClass, len(req.Booking.Passengers))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"reservation_id": res.ID,
		"seat_ids":       res.SeatIDs,
		"expires_at":     res.ExpiresAt,
	})
}

// ReleaseSeats handles POST /api/v1/inventory/release. Releasing a
// correlation id that holds nothing succeeds with released=false.
func (h *InventoryHandler) ReleaseSeats(w http.ResponseWriter, r *http.Request) {
	var req CorrelationRequest
	if !decodeStepRequest(w, r, &req) {
		return
	}

	res, err := h.service.Release(r.Context(), req.CorrelationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	body := map[string]any{"success": true, "released": res != nil}
	if res != nil {
		body["reservation_id"] = res.ID
		body["seat_ids"] = res.SeatIDs
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// ConfirmSeats handles POST /api/v1/inventory/confirm.
func (h *InventoryHandler) ConfirmSeats(w http.ResponseWriter, r *http.Request) {
	var req CorrelationRequest
	if !decodeStepRequest(w, r, &req) {
		return
	}

	res, err := h.service.Confirm(r.Context(), req.CorrelationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"reservation_id": res.ID,
		"status":         res.Status,
	})
}

// GetReservation handles GET /api/v1/inventory/reservations/{correlationID}.
func (h *InventoryHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationID")
	if correlationID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "correlation id is required"},
		})
		return
	}

	res, err := h.service.GetReservation(r.Context(), correlationID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: res})
}

// InitializeFlight handles POST /api/v1/flights.
func (h *InventoryHandler) InitializeFlight(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req InitializeFlightRequest
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

	created, err := h.service.InitializeFlight(r.Context(), req.FlightID, req.Seats)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: map[string]any{
		"flight_id":     req.FlightID,
		"seats_created": created,
	}})
}

// decodeStepRequest decodes and validates a step protocol body. It writes the
// error response itself and reports whether the caller should proceed.
func decodeStepRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}

	if err := validator.Validate(dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}

	return true
}
