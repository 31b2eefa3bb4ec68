package models

import (
	"encoding/json"
	"time"
)

type AuditStream string

const (
	AuditStreamBusiness AuditStream = "business"
	AuditStreamSecurity AuditStream = "security"
)

// AuditEntry is append-only; the pipeline never updates or deletes rows.
type AuditEntry struct {
	ID            int64           `json:"id" db:"id"`
	EnvelopeID    string          `json:"envelope_id" db:"envelope_id"`
	Stream        AuditStream     `json:"stream" db:"stream"`
	Event         string          `json:"event" db:"event"`
	AuditableType string          `json:"auditable_type" db:"auditable_type"`
	AuditableID   *string         `json:"auditable_id,omitempty" db:"auditable_id"`
	UserID        *string         `json:"user_id,omitempty" db:"user_id"`
	OldValues     json.RawMessage `json:"old_values,omitempty" db:"old_values"`
	NewValues     json.RawMessage `json:"new_values,omitempty" db:"new_values"`
	IPAddress     *string         `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent     *string         `json:"user_agent,omitempty" db:"user_agent"`
	Description   string          `json:"description" db:"description"`
	OccurredAt    time.Time       `json:"occurred_at" db:"occurred_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
