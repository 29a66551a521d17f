package domain

import "time"

// LogLevel classifies an execution log entry.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelError   LogLevel = "error"
	LogLevelWarning LogLevel = "warning"
)

// ActorOrchestrator marks entries written by the saga orchestrator itself.
// Step participants report under their Participant name.
const ActorOrchestrator = "orchestrator"

// ExecutionLogEntry is one append-only audit record scoped to a correlation
// id. Entries are never mutated or deleted; ordered reads by ID reconstruct
// the full history of a saga, forward steps and compensations alike.
type ExecutionLogEntry struct {
	ID             int64     `json:"id"`
	CorrelationID  string    `json:"correlation_id"`
	StepName       StepName  `json:"step_name"`
	Actor          string    `json:"actor"`
	Level          LogLevel  `json:"level"`
	Message        string    `json:"message"`
	IsCompensation bool      `json:"is_compensation"`
	CreatedAt      time.Time `json:"created_at"`
}
