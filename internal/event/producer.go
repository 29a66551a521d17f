package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	pkgkafka "github.com/skyfare/FlightBookingGo/pkg/kafka"
)

// Kafka topic constants for booking saga domain events.
const (
	TopicSagaStarted     = "skyfare.saga.started"
	TopicSagaCompleted   = "skyfare.saga.completed"
	TopicSagaFailed      = "skyfare.saga.failed"
	TopicSagaCompensated = "skyfare.saga.compensated"

	TopicSeatsReserved = "skyfare.inventory.reserved"
	TopicSeatsReleased = "skyfare.inventory.released"
	TopicSeatsExpired  = "skyfare.inventory.expired"
)

// Aggregate type constants.
const (
	AggregateTypeSaga        = "saga"
	AggregateTypeReservation = "reservation"
)

// Source identifier for events originating from this service.
const SourceBookingSaga = "booking-saga-service"

// SagaStartedData is the payload for a saga.started event.
type SagaStartedData struct {
	CorrelationID string `json:"correlation_id"`
	FlightID      string `json:"flight_id"`
	SeatClass     string `json:"seat_class"`
	UserID        string `json:"user_id"`
	Passengers    int    `json:"passengers"`
}

// SagaCompletedData is the payload for a saga.completed event.
type SagaCompletedData struct {
	CorrelationID    string `json:"correlation_id"`
	BookingReference string `json:"booking_reference"`
	StepsCompleted   int    `json:"steps_completed"`
}

// SagaFailedData is the payload for a saga.failed event.
type SagaFailedData struct {
	CorrelationID string `json:"correlation_id"`
	FailedStep    string `json:"failed_step"`
	ErrorKind     string `json:"error_kind"`
	ErrorMessage  string `json:"error_message"`
}

// SagaCompensatedData is the payload for a saga.compensated event.
type SagaCompensatedData struct {
	CorrelationID          string `json:"correlation_id"`
	FailedStep             string `json:"failed_step"`
	CompensationsSucceeded int    `json:"compensations_succeeded"`
	CompensationsFailed    int    `json:"compensations_failed"`
}

// SeatsReservedData is the payload for an inventory.reserved event.
type SeatsReservedData struct {
	ReservationID string   `json:"reservation_id"`
	CorrelationID string   `json:"correlation_id"`
	FlightID      string   `json:"flight_id"`
	SeatClass     string   `json:"seat_class"`
	SeatIDs       []string `json:"seat_ids"`
}

// SeatsReleasedData is the payload for inventory.released and
// inventory.expired events.
type SeatsReleasedData struct {
	ReservationID string   `json:"reservation_id"`
	CorrelationID string   `json:"correlation_id"`
	FlightID      string   `json:"flight_id"`
	SeatIDs       []string `json:"seat_ids"`
}

// Producer publishes booking saga domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the booking saga service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishSagaStarted publishes a saga.started event.
func (p *Producer) PublishSagaStarted(ctx context.Context, correlationID string, intent *domain.BookingIntent) error {
	data := SagaStartedData{
		CorrelationID: correlationID,
		FlightID:      intent.FlightID,
		SeatClass:     intent.SeatClass,
		UserID:        intent.UserID,
		Passengers:    intent.PassengerCount(),
	}

	return p.publish(ctx, TopicSagaStarted, correlationID, AggregateTypeSaga, data)
}

// PublishSagaCompleted publishes a saga.completed event.
func (p *Producer) PublishSagaCompleted(ctx context.Context, result *domain.SagaResult) error {
	data := SagaCompletedData{
		CorrelationID:    result.CorrelationID,
		BookingReference: result.BookingReference,
		StepsCompleted:   result.StepsCompleted,
	}

	return p.publish(ctx, TopicSagaCompleted, result.CorrelationID, AggregateTypeSaga, data)
}

// PublishSagaFailed publishes a saga.failed event at the moment a forward step
// fails, before the compensation pass starts.
func (p *Producer) PublishSagaFailed(ctx context.Context, result *domain.SagaResult) error {
	data := SagaFailedData{
		CorrelationID: result.CorrelationID,
		FailedStep:    string(result.FailedStep),
		ErrorKind:     result.ErrorKind,
		ErrorMessage:  result.ErrorMessage,
	}

	return p.publish(ctx, TopicSagaFailed, result.CorrelationID, AggregateTypeSaga, data)
}

// PublishSagaCompensated publishes a saga.compensated event after the
// compensation pass finishes.
func (p *Producer) PublishSagaCompensated(ctx context.Context, result *domain.SagaResult) error {
	data := SagaCompensatedData{
		CorrelationID:          result.CorrelationID,
		FailedStep:             string(result.FailedStep),
		CompensationsSucceeded: result.CompensationsSucceeded,
		CompensationsFailed:    result.CompensationsFailed,
	}

	return p.publish(ctx, TopicSagaCompensated, result.CorrelationID, AggregateTypeSaga, data)
}

// PublishSeatsReserved publishes an inventory.reserved event.
func (p *Producer) PublishSeatsReserved(ctx context.Context, res *domain.SeatReservation) error {
	data := SeatsReservedData{
		ReservationID: res.ID,
		CorrelationID: res.CorrelationID,
		FlightID:      res.FlightID,
		SeatClass:     res.SeatClass,
		SeatIDs:       res.SeatIDs,
	}

	return p.publish(ctx, TopicSeatsReserved, res.CorrelationID, AggregateTypeReservation, data)
}

// PublishSeatsReleased publishes an inventory.released event.
func (p *Producer) PublishSeatsReleased(ctx context.Context, res *domain.SeatReservation) error {
	data := SeatsReleasedData{
		ReservationID: res.ID,
		CorrelationID: res.CorrelationID,
		FlightID:      res.FlightID,
		SeatIDs:       res.SeatIDs,
	}

	return p.publish(ctx, TopicSeatsReleased, res.CorrelationID, AggregateTypeReservation, data)
}

// PublishSeatsExpired publishes an inventory.expired event.
func (p *Producer) PublishSeatsExpired(ctx context.Context, res *domain.SeatReservation) error {
	data := SeatsReleasedData{
		ReservationID: res.ID,
		CorrelationID: res.CorrelationID,
		FlightID:      res.FlightID,
		SeatIDs:       res.SeatIDs,
	}

	return p.publish(ctx, TopicSeatsExpired, res.CorrelationID, AggregateTypeReservation, data)
}

func (p *Producer) publish(ctx context.Context, topic, correlationID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, correlationID, aggregateType, SourceBookingSaga, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt = evt.WithCorrelationID(correlationID)

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("correlation_id", correlationID),
	)

	return nil
}
