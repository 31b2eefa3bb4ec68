package models

import (
	"encoding/json"
	"time"
)

// FailedEnvelope records an envelope whose retries were exhausted.
type FailedEnvelope struct {
	ID         string          `json:"id" db:"id"`
	EnvelopeID string          `json:"envelope_id" db:"envelope_id"`
	Category   string          `json:"category" db:"category"`
	Action     string          `json:"action" db:"action"`
	ActorID    *string         `json:"actor_id,omitempty" db:"actor_id"`
	ErrorKind  string          `json:"error_kind" db:"error_kind"`
	Error      string          `json:"error" db:"error"`
	Stack      string          `json:"stack,omitempty" db:"stack"`
	Attempts   int32           `json:"attempts" db:"attempts"`
	Envelope   json.RawMessage `json:"envelope" db:"envelope"`
	FailedAt   time.Time       `json:"failed_at" db:"failed_at"`
}
