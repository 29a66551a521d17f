package saga

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	"github.com/skyfare/FlightBookingGo/internal/event"
	"github.com/skyfare/FlightBookingGo/internal/repository"
	"github.com/skyfare/FlightBookingGo/internal/stepclient"
	"github.com/skyfare/FlightBookingGo/pkg/logger"
)

// Orchestrator drives one booking attempt through the fixed step sequence and,
// on failure, through a single compensation pass in reverse order. All state
// transitions are persisted; the execution log records every decision.
type Orchestrator struct {
	sagas           repository.SagaStore
	execLog         repository.ExecutionLogStore
	caller          stepclient.StepCaller
	producer        *event.Producer
	logger          *slog.Logger
	enableInjection bool
}

// NewOrchestrator creates a saga orchestrator. enableInjection gates the
// test-only failure injection hook; when false, injections in requests are
// ignored.
func NewOrchestrator(
	sagas repository.SagaStore,
	execLog repository.ExecutionLogStore,
	caller stepclient.StepCaller,
	producer *event.Producer,
	logger *slog.Logger,
	enableInjection bool,
) *Orchestrator {
	return &Orchestrator{
		sagas:           sagas,
		execLog:         execLog,
		caller:          caller,
		producer:        producer,
		logger:          logger,
		enableInjection: enableInjection,
	}
}

// StartSaga runs one booking attempt to a terminal state. It returns an error
// only when the initial transaction record cannot be persisted; every other
// failure mode, including every step and compensation failure, is folded into
// the returned SagaResult.
//
// Each call gets a fresh correlation id, so a saga runs at most one forward
// pass and at most one compensation pass. There is no retry of any step; a
// transient fault fails the saga exactly like an explicit rejection.
func (o *Orchestrator) StartSaga(ctx context.Context, intent *domain.BookingIntent, injection domain.FailureInjection) (*domain.SagaResult, error) {
	correlationID := uuid.New().String()
	ctx = logger.WithCorrelationID(ctx, correlationID)
	started := time.Now()

	tx := domain.NewSagaTransaction(correlationID)
	if err := o.sagas.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create saga transaction: %w", err)
	}

	if !o.enableInjection {
		injection = nil
	}

	o.appendLog(ctx, correlationID, "", domain.LogLevelInfo,
		fmt.Sprintf("saga started for flight %s (%d passengers, %s)", intent.FlightID, intent.PassengerCount(), intent.SeatClass),
		false)

	if err := o.producer.PublishSagaStarted(ctx, correlationID, intent); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish saga.started event",
			slog.String("error", err.Error()),
		)
	}

	result := &domain.SagaResult{
		CorrelationID: correlationID,
		Compensations: []domain.CompensationRecord{},
	}

	steps := domain.BookingSteps()
	var completed []domain.StepDefinition

	for _, step := range steps {
		o.appendLog(ctx, correlationID, step.Name, domain.LogLevelInfo,
			fmt.Sprintf("executing %s against %s service", step.Name, step.Participant), false)

		outcome := o.executeStep(ctx, step, correlationID, intent, injection)

		if outcome.Success {
			completed = append(completed, step)
			tx.Advance()
			o.persist(ctx, tx)
			msg := fmt.Sprintf("%s completed", step.Name)
			if s := detailSummary(outcome.Detail); s != "" {
				msg += " (" + s + ")"
			}
			o.appendLog(ctx, correlationID, step.Name, domain.LogLevelSuccess, msg, false)

			if step.Name == domain.StepConfirmBooking {
				if ref, ok := outcome.Detail["booking_reference"].(string); ok {
					result.BookingReference = ref
				}
			}
			continue
		}

		// The failing step is never compensated; only the steps before it.
		sagaStepFailures.WithLabelValues(string(step.Name), string(outcome.ErrorKind)).Inc()
		o.recordFailure(ctx, tx, step, outcome)

		result.FailedStep = step.Name
		result.ErrorKind = string(outcome.ErrorKind)
		result.ErrorMessage = outcome.Err
		result.StepsCompleted = tx.StepsCompleted

		if err := o.producer.PublishSagaFailed(ctx, result); err != nil {
			o.logger.ErrorContext(ctx, "failed to publish saga.failed event",
				slog.String("error", err.Error()),
			)
		}

		o.compensate(ctx, tx, completed, result)

		sagaTotal.WithLabelValues("compensated").Inc()
		sagaDuration.Observe(time.Since(started).Seconds())
		return result, nil
	}

	o.finalize(ctx, correlationID, completed)

	tx.Complete()
	o.persist(ctx, tx)
	o.appendLog(ctx, correlationID, "", domain.LogLevelSuccess, "saga completed, booking confirmed", false)

	result.Success = true
	result.StepsCompleted = tx.StepsCompleted

	if err := o.producer.PublishSagaCompleted(ctx, result); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish saga.completed event",
			slog.String("error", err.Error()),
		)
	}

	sagaTotal.WithLabelValues("completed").Inc()
	sagaDuration.Observe(time.Since(started).Seconds())

	o.logger.InfoContext(ctx, "saga completed",
		slog.String("flight_id", intent.FlightID),
		slog.String("booking_reference", result.BookingReference),
	)

	return result, nil
}

// executeStep runs one forward step, honoring injected failures and containing
// panics from the step client. A panic is indistinguishable from a lost
// response, so it is classified transient.
func (o *Orchestrator) executeStep(ctx context.Context, step domain.StepDefinition, correlationID string, intent *domain.BookingIntent, injection domain.FailureInjection) (out stepclient.Outcome) {
	if injection.ShouldFail(step.Name) {
		return stepclient.Outcome{
			ErrorKind: stepclient.ErrorKindRejected,
			Err:       fmt.Sprintf("injected failure for step %s", step.Name),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "step client panicked",
				slog.String("step", string(step.Name)),
				slog.Any("panic", r),
			)
			out = stepclient.Outcome{
				ErrorKind: stepclient.ErrorKindTransient,
				Err:       fmt.Sprintf("step %s panicked: %v", step.Name, r),
			}
		}
	}()

	return o.caller.Execute(ctx, step, correlationID, intent)
}

// finalize drives the post-success action of each completed step that has
// one. The seat hold is pinned here so the expiry sweeper never reclaims a
// reservation behind a confirmed booking. A finalize failure does not undo
// the saga; the booking stands and the failure is surfaced for operators.
func (o *Orchestrator) finalize(ctx context.Context, correlationID string, completed []domain.StepDefinition) {
	for _, step := range completed {
		if step.FinalizePath == "" {
			continue
		}

		outcome := o.finalizeStep(ctx, step, correlationID)
		if outcome.Success {
			msg := fmt.Sprintf("%s finalized via %s", step.Name, step.FinalizePath)
			if s := detailSummary(outcome.Detail); s != "" {
				msg += " (" + s + ")"
			}
			o.appendLog(ctx, correlationID, step.Name, domain.LogLevelSuccess, msg, false)
			continue
		}

		o.appendLog(ctx, correlationID, step.Name, domain.LogLevelWarning,
			fmt.Sprintf("finalize for %s failed: %s", step.Name, outcome.Err), false)
		o.logger.ErrorContext(ctx, "finalize failed, manual intervention may be required",
			slog.String("step", string(step.Name)),
			slog.String("error", outcome.Err),
		)
	}
}

// finalizeStep runs one finalize call with the same panic containment as
// forward steps.
func (o *Orchestrator) finalizeStep(ctx context.Context, step domain.StepDefinition, correlationID string) (out stepclient.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "step client panicked during finalize",
				slog.String("step", string(step.Name)),
				slog.Any("panic", r),
			)
			out = stepclient.Outcome{
				ErrorKind: stepclient.ErrorKindTransient,
				Err:       fmt.Sprintf("finalize for %s panicked: %v", step.Name, r),
			}
		}
	}()

	return o.caller.Finalize(ctx, step, correlationID)
}

// detailSummary renders a participant's salient result fields for the
// execution log. Only known step-protocol fields appear; the success flag and
// anything unrecognized stay out.
func detailSummary(detail map[string]any) string {
	keys := []string{
		"reservation_id", "seat_ids", "expires_at",
		"authorization_id", "amount",
		"miles_awarded", "miles_reversed", "new_balance",
		"booking_reference", "released", "cancelled", "status",
	}
	var parts []string
	for _, k := range keys {
		if v, ok := detail[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, ", ")
}

// recordFailure persists the failed state and writes the failure to the
// execution log. Protocol violations get their own log message so a
// misbehaving participant stands out from an ordinary decline.
func (o *Orchestrator) recordFailure(ctx context.Context, tx *domain.SagaTransaction, step domain.StepDefinition, outcome stepclient.Outcome) {
	tx.Fail(step.Name, outcome.Err)
	o.persist(ctx, tx)

	msg := fmt.Sprintf("%s failed (%s): %s", step.Name, outcome.ErrorKind, outcome.Err)
	if outcome.ErrorKind == stepclient.ErrorKindProtocol {
		msg = fmt.Sprintf("%s participant violated the step protocol: %s", step.Name, outcome.Err)
	}
	o.appendLog(ctx, tx.CorrelationID, step.Name, domain.LogLevelError, msg, false)

	o.logger.WarnContext(ctx, "saga step failed",
		slog.String("step", string(step.Name)),
		slog.String("kind", string(outcome.ErrorKind)),
		slog.String("error", outcome.Err),
	)
}

// compensate reverses the completed steps in strict reverse order. Every
// compensation is attempted exactly once; a failed compensation is recorded
// and the pass moves on to the next one. The pass always runs, even when no
// steps completed, so every failed saga lands in the same terminal state.
func (o *Orchestrator) compensate(ctx context.Context, tx *domain.SagaTransaction, completed []domain.StepDefinition, result *domain.SagaResult) {
	tx.BeginCompensation()
	o.persist(ctx, tx)

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		o.appendLog(ctx, tx.CorrelationID, step.Name, domain.LogLevelInfo,
			fmt.Sprintf("compensating %s via %s", step.Name, step.CompensationPath), true)

		outcome := o.compensateStep(ctx, step, tx.CorrelationID)

		record := domain.CompensationRecord{Step: step.Name, Success: outcome.Success}
		if outcome.Success {
			record.Detail = detailSummary(outcome.Detail)
			result.CompensationsSucceeded++
			sagaCompensations.WithLabelValues(string(step.Name), "success").Inc()
			msg := fmt.Sprintf("%s compensated", step.Name)
			if record.Detail != "" {
				msg += " (" + record.Detail + ")"
			}
			o.appendLog(ctx, tx.CorrelationID, step.Name, domain.LogLevelSuccess, msg, true)
		} else {
			record.Detail = outcome.Err
			result.CompensationsFailed++
			sagaCompensations.WithLabelValues(string(step.Name), "failure").Inc()
			// Never retried and never fatal; the remaining compensations
			// still run.
			o.appendLog(ctx, tx.CorrelationID, step.Name, domain.LogLevelWarning,
				fmt.Sprintf("compensation for %s failed: %s", step.Name, outcome.Err), true)
			o.logger.ErrorContext(ctx, "compensation failed, manual intervention may be required",
				slog.String("step", string(step.Name)),
				slog.String("error", outcome.Err),
			)
		}
		result.Compensations = append(result.Compensations, record)
	}

	tx.FinishCompensation()
	o.persist(ctx, tx)
	o.appendLog(ctx, tx.CorrelationID, "", domain.LogLevelInfo,
		fmt.Sprintf("compensation pass finished: %d succeeded, %d failed",
			result.CompensationsSucceeded, result.CompensationsFailed), true)

	if err := o.producer.PublishSagaCompensated(ctx, result); err != nil {
		o.logger.ErrorContext(ctx, "failed to publish saga.compensated event",
			slog.String("error", err.Error()),
		)
	}
}

// compensateStep runs one compensation with the same panic containment as
// forward steps.
func (o *Orchestrator) compensateStep(ctx context.Context, step domain.StepDefinition, correlationID string) (out stepclient.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "step client panicked during compensation",
				slog.String("step", string(step.Name)),
				slog.Any("panic", r),
			)
			out = stepclient.Outcome{
				ErrorKind: stepclient.ErrorKindTransient,
				Err:       fmt.Sprintf("compensation for %s panicked: %v", step.Name, r),
			}
		}
	}()

	return o.caller.Compensate(ctx, step, correlationID)
}

// persist updates the transaction record. A persistence fault here must not
// derail a saga that is mid-flight against remote participants, so it is
// logged and the run continues on in-memory state.
func (o *Orchestrator) persist(ctx context.Context, tx *domain.SagaTransaction) {
	if err := o.sagas.Update(ctx, tx); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist saga state",
			slog.String("status", string(tx.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// appendLog writes one execution log entry, logging instead of failing when
// the store is unavailable.
func (o *Orchestrator) appendLog(ctx context.Context, correlationID string, step domain.StepName, level domain.LogLevel, message string, isCompensation bool) {
	entry := &domain.ExecutionLogEntry{
		CorrelationID:  correlationID,
		StepName:       step,
		Actor:          domain.ActorOrchestrator,
		Level:          level,
		Message:        message,
		IsCompensation: isCompensation,
	}
	if err := o.execLog.Append(ctx, entry); err != nil {
		o.logger.ErrorContext(ctx, "failed to append execution log entry",
			slog.String("message", message),
			slog.String("error", err.Error()),
		)
	}
}
