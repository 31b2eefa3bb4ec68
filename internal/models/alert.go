package models

import (
	"encoding/json"
	"time"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

type Alert struct {
	ID        string          `json:"id" db:"id"`
	Type      string          `json:"type" db:"type"`
	Title     string          `json:"title" db:"title"`
	Message   string          `json:"message" db:"message"`
	Severity  AlertSeverity   `json:"severity" db:"severity"`
	Status    AlertStatus     `json:"status" db:"status"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	Data      json.RawMessage `json:"data,omitempty" db:"data"`
	CreatedBy *string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
