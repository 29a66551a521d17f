package stepclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skyfare/FlightBookingGo/internal/domain"
	apperrors "github.com/skyfare/FlightBookingGo/pkg/errors"
	"github.com/skyfare/FlightBookingGo/pkg/httpclient"
)

// ErrorKind classifies why a step call failed.
type ErrorKind string

const (
	// ErrorKindTransient covers network faults, timeouts, open circuits and
	// participant 5xx responses. The fault says nothing about the business
	// outcome.
	ErrorKindTransient ErrorKind = "TRANSIENT"

	// ErrorKindRejected is an explicit decline by the participant. The
	// participant's reason is preserved verbatim.
	ErrorKindRejected ErrorKind = "REJECTED"

	// ErrorKindProtocol means the participant answered with a body this
	// client cannot interpret. It is handled like a rejection but logged
	// distinctly so a misbehaving participant is visible.
	ErrorKindProtocol ErrorKind = "PROTOCOL"
)

// Outcome is the result of one step action or compensation call.
type Outcome struct {
	Success   bool
	Detail    map[string]any
	ErrorKind ErrorKind
	Err       string
}

// failure builds a failed outcome.
func failure(kind ErrorKind, msg string) Outcome {
	return Outcome{ErrorKind: kind, Err: msg}
}

// StepCaller executes saga step actions and compensations against remote
// participants. Calls never return a Go error; every failure mode is folded
// into the Outcome so the orchestrator has a single decision surface.
type StepCaller interface {
	Execute(ctx context.Context, step domain.StepDefinition, correlationID string, intent *domain.BookingIntent) Outcome
	Compensate(ctx context.Context, step domain.StepDefinition, correlationID string) Outcome
	Finalize(ctx context.Context, step domain.StepDefinition, correlationID string) Outcome
}

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is the HTTP implementation of StepCaller.
type Client struct {
	httpClient HTTPDoer
	baseURL    func(domain.Participant) string
	timeoutFor func(domain.StepName) time.Duration
	logger     *slog.Logger
}

// New creates a step client. baseURL resolves a participant to its service
// base URL; timeoutFor returns the per-step call timeout.
func New(httpClient HTTPDoer, baseURL func(domain.Participant) string, timeoutFor func(domain.StepName) time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		timeoutFor: timeoutFor,
		logger:     logger,
	}
}

// executeRequest is the action call body. The full booking intent travels to
// every participant; each one reads only the fields it needs.
type executeRequest struct {
	CorrelationID string                `json:"correlation_id"`
	Booking       *domain.BookingIntent `json:"booking"`
}

// compensateRequest is the compensation call body. The correlation id alone
// identifies what to undo on the participant side.
type compensateRequest struct {
	CorrelationID string `json:"correlation_id"`
}

// Execute performs the step's forward action.
func (c *Client) Execute(ctx context.Context, step domain.StepDefinition, correlationID string, intent *domain.BookingIntent) Outcome {
	body := executeRequest{CorrelationID: correlationID, Booking: intent}
	return c.call(ctx, step, correlationID, step.ActionPath, body)
}

// Compensate performs the step's compensating action.
func (c *Client) Compensate(ctx context.Context, step domain.StepDefinition, correlationID string) Outcome {
	body := compensateRequest{CorrelationID: correlationID}
	return c.call(ctx, step, correlationID, step.CompensationPath, body)
}

// Finalize performs the step's post-success action. Like a compensation, the
// correlation id alone identifies the resource on the participant side.
func (c *Client) Finalize(ctx context.Context, step domain.StepDefinition, correlationID string) Outcome {
	body := compensateRequest{CorrelationID: correlationID}
	return c.call(ctx, step, correlationID, step.FinalizePath, body)
}

func (c *Client) call(ctx context.Context, step domain.StepDefinition, correlationID, path string, body any) Outcome {
	if d := c.timeoutFor(step.Name); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return failure(ErrorKindProtocol, fmt.Sprintf("marshal %s request: %v", step.Name, err))
	}

	url := c.baseURL(step.Participant) + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return failure(ErrorKindProtocol, fmt.Sprintf("create %s request: %v", step.Name, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", correlationID)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		// Network faults, timeouts, open circuits and breaker-converted 5xx
		// all surface here.
		c.logger.WarnContext(ctx, "step call failed",
			slog.String("step", string(step.Name)),
			slog.String("participant", string(step.Participant)),
			slog.String("error", err.Error()),
		)
		return failure(ErrorKindTransient, fmt.Sprintf("call %s service: %v", step.Participant, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		err := httpclient.ParseResponseError(resp, string(step.Participant))
		return failure(ErrorKindTransient, err.Error())
	}

	if resp.StatusCode >= 400 {
		return c.classifyRejection(ctx, step, resp)
	}

	var detail map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		c.logger.ErrorContext(ctx, "participant returned malformed success body",
			slog.String("step", string(step.Name)),
			slog.String("participant", string(step.Participant)),
			slog.Int("status", resp.StatusCode),
		)
		return failure(ErrorKindProtocol, fmt.Sprintf("%s returned unparseable body for %s", step.Participant, step.Name))
	}

	flag, isBool := detail["success"].(bool)
	if !isBool {
		c.logger.ErrorContext(ctx, "participant returned 2xx without success flag",
			slog.String("step", string(step.Name)),
			slog.String("participant", string(step.Participant)),
		)
		return failure(ErrorKindProtocol, fmt.Sprintf("%s answered %s off-protocol: success flag missing", step.Participant, step.Name))
	}

	// A 2xx with an explicit success=false is a decline in the flat body
	// form; the participant's reason travels in the error field and is
	// preserved verbatim.
	if !flag {
		reason, _ := detail["error"].(string)
		if reason == "" {
			reason = fmt.Sprintf("%s declined %s without a reason", step.Participant, step.Name)
		}
		c.logger.InfoContext(ctx, "step rejected by participant",
			slog.String("step", string(step.Name)),
			slog.String("participant", string(step.Participant)),
			slog.String("reason", reason),
		)
		return failure(ErrorKindRejected, reason)
	}

	return Outcome{Success: true, Detail: detail}
}

// classifyRejection turns a participant 4xx into a rejected or protocol
// outcome. A parseable error envelope is an explicit decline and its message
// is preserved verbatim; anything else is a protocol violation.
func (c *Client) classifyRejection(ctx context.Context, step domain.StepDefinition, resp *http.Response) Outcome {
	err := httpclient.ParseResponseError(resp, string(step.Participant))

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		c.logger.InfoContext(ctx, "step rejected by participant",
			slog.String("step", string(step.Name)),
			slog.String("participant", string(step.Participant)),
			slog.String("reason", appErr.Message),
		)
		return failure(ErrorKindRejected, appErr.Message)
	}

	c.logger.ErrorContext(ctx, "participant returned unparseable error body",
		slog.String("step", string(step.Name)),
		slog.String("participant", string(step.Participant)),
		slog.Int("status", resp.StatusCode),
	)
	return failure(ErrorKindProtocol, err.Error())
}
