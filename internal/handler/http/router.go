package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyfare/FlightBookingGo/internal/inventory"
	"github.com/skyfare/FlightBookingGo/internal/saga"
	"github.com/skyfare/FlightBookingGo/pkg/health"
	"github.com/skyfare/FlightBookingGo/pkg/middleware"
)

// NewRouter creates a chi router with all booking saga service routes
// registered. The inventory participant is served in-process alongside the
// coordinator's own API.
func NewRouter(
	orchestrator *saga.Orchestrator,
	statusService *saga.StatusService,
	inventoryService *inventory.Service,
	healthHandler *health.Handler,
	corsOrigins []string,
	environment string,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("booking-saga"))
	r.Use(middleware.Tracing("booking-saga"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: corsOrigins,
		Environment:    environment,
	}))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	sagaHandler := NewSagaHandler(orchestrator, statusService, logger)
	inventoryHandler := NewInventoryHandler(inventoryService, logger)

	r.Route("/api/v1/bookings", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", sagaHandler.CreateBooking)
		r.Get("/", sagaHandler.ListBookings)
		r.Get("/{correlationID}", sagaHandler.GetBookingStatus)
		r.Get("/{correlationID}/log", sagaHandler.GetExecutionLog)
	})

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/reserve", inventoryHandler.ReserveSeats)
		r.Post("/release", inventoryHandler.ReleaseSeats)
		r.Post("/confirm", inventoryHandler.ConfirmSeats)
		r.Get("/reservations/{correlationID}", inventoryHandler.GetReservation)
	})

	r.Route("/api/v1/flights", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/", inventoryHandler.InitializeFlight)
	})

	return r
}
