package models

import (
	"encoding/json"
	"time"
)

type NotificationChannel string

const (
	ChannelDatabase  NotificationChannel = "database"
	ChannelBroadcast NotificationChannel = "broadcast"
	ChannelMail      NotificationChannel = "mail"
)

// Notification is the in-app record written by the database channel.
type Notification struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"user_id" db:"user_id"`
	EnvelopeID string          `json:"envelope_id" db:"envelope_id"`
	Category   string          `json:"category" db:"category"`
	Action     string          `json:"action" db:"action"`
	Priority   string          `json:"priority" db:"priority"`
	Title      string          `json:"title" db:"title"`
	Message    string          `json:"message" db:"message"`
	Metadata   json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	ReadAt     *time.Time      `json:"read_at,omitempty" db:"read_at"`
}
