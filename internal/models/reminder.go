package models

import (
	"encoding/json"
	"time"
)

// Reminder is consumed by the time-driven sweep; the pipeline only inserts.
type Reminder struct {
	ID           string          `json:"id" db:"id"`
	RelatedType  string          `json:"related_type" db:"related_type"`
	RelatedID    string          `json:"related_id" db:"related_id"`
	ReminderDate time.Time       `json:"reminder_date" db:"reminder_date"`
	ReminderType string          `json:"reminder_type" db:"reminder_type"`
	Data         json.RawMessage `json:"data,omitempty" db:"data"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
