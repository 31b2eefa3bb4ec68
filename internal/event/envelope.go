package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryEquipment   Category = "equipment"
	CategoryMaintenance Category = "maintenance"
	CategoryCalibration Category = "calibration"
	CategoryContingency Category = "contingency"
	CategoryTraining    Category = "training"
	CategoryTicket      Category = "ticket"
	CategoryService     Category = "service"
	CategoryArea        Category = "area"
	CategoryAdmin       Category = "admin"
	CategoryUser        Category = "user"
	CategoryDashboard   Category = "dashboard"
	CategorySystem      Category = "system"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryEquipment, CategoryMaintenance, CategoryCalibration, CategoryContingency,
	CategoryTraining, CategoryTicket, CategoryService, CategoryArea,
	CategoryAdmin, CategoryUser, CategoryDashboard, CategorySystem,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Action is the verb describing what happened to the subject.
type Action string

const (
	ActionCreated            Action = "created"
	ActionUpdated            Action = "updated"
	ActionDeleted            Action = "deleted"
	ActionAssigned           Action = "assigned"
	ActionStatusChanged      Action = "status_changed"
	ActionReopened           Action = "reopened"
	ActionEscalated          Action = "escalated"
	ActionResolved           Action = "resolved"
	ActionScheduled          Action = "scheduled"
	ActionCompleted          Action = "completed"
	ActionOverdue            Action = "overdue"
	ActionFailed             Action = "failed"
	ActionCancelled          Action = "cancelled"
	ActionLogin              Action = "login"
	ActionLogout             Action = "logout"
	ActionLoginFailed        Action = "login_failed"
	ActionRoleChanged        Action = "role_changed"
	ActionPermissionsChanged Action = "permissions_changed"
	ActionDataExported       Action = "data_exported"
	ActionDatabaseReset      Action = "database_reset"
	ActionConfigChanged      Action = "config_changed"
	ActionMetricsUpdated     Action = "metrics_updated"
)

func (a Action) In(actions ...Action) bool {
	for _, candidate := range actions {
		if a == candidate {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Elevated reports whether the priority is high or critical.
func (p Priority) Elevated() bool {
	return p == PriorityHigh || p == PriorityCritical
}

// UserRef identifies the user who performed the action.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Correlation carries request metadata captured where the action happened.
type Correlation struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Envelope is the immutable record of one domain occurrence.
type Envelope struct {
	ID          string
	Category    Category
	Action      Action
	Priority    Priority
	Actor       *UserRef
	Subject     Subject
	Payload     Payload
	OccurredAt  time.Time
	Correlation Correlation
}

// ActorID returns the actor's ID or an empty string for system actions.
func (e Envelope) ActorID() string {
	if e.Actor == nil {
		return ""
	}
	return e.Actor.ID
}

// SubjectType and SubjectID return the polymorphic reference for storage.
func (e Envelope) SubjectType() string {
	if e.Subject == nil {
		return string(e.Category)
	}
	return e.Subject.Type()
}

func (e Envelope) SubjectID() string {
	switch s := e.Subject.(type) {
	case LiveSubject:
		return s.ID
	case SnapshotSubject:
		return s.Fields.String("id")
	}
	return e.Payload.String("id")
}

// Describe renders a short human-readable sentence, e.g.
// "equipment EQ-001 (Infusion pump) created".
func (e Envelope) Describe() string {
	label := e.label()
	if label == "" {
		return fmt.Sprintf("%s %s", e.Category, humanize(e.Action))
	}
	return fmt.Sprintf("%s %s %s", e.Category, label, humanize(e.Action))
}

func (e Envelope) label() string {
	fields := e.Payload
	if snap, ok := e.Subject.(SnapshotSubject); ok {
		fields = snap.Fields
	}
	code := firstNonEmpty(fields.String("code"), e.Payload.String("code"))
	name := firstNonEmpty(fields.String("name"), e.Payload.String("name"), e.Payload.String("title"))
	switch {
	case code != "" && name != "":
		return fmt.Sprintf("%s (%s)", code, name)
	case code != "":
		return code
	case name != "":
		return name
	}
	if id := e.SubjectID(); id != "" {
		return "#" + id
	}
	return ""
}

func humanize(a Action) string {
	return strings.ReplaceAll(string(a), "_", " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type envelopeJSON struct {
	ID          string          `json:"id"`
	Category    Category        `json:"category"`
	Action      Action          `json:"action"`
	Priority    Priority        `json:"priority"`
	Actor       *UserRef        `json:"actor,omitempty"`
	Subject     json.RawMessage `json:"subject,omitempty"`
	Payload     Payload         `json:"payload,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Correlation Correlation     `json:"correlation"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	subject, err := marshalSubject(e.Subject)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelopeJSON{
		ID:          e.ID,
		Category:    e.Category,
		Action:      e.Action,
		Priority:    e.Priority,
		Actor:       e.Actor,
		Subject:     subject,
		Payload:     e.Payload,
		OccurredAt:  e.OccurredAt,
		Correlation: e.Correlation,
	})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw envelopeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	subject, err := ParseSubject(raw.Subject)
	if err != nil {
		return err
	}
	*e = Envelope{
		ID:          raw.ID,
		Category:    raw.Category,
		Action:      raw.Action,
		Priority:    raw.Priority,
		Actor:       raw.Actor,
		Subject:     subject,
		Payload:     raw.Payload,
		OccurredAt:  raw.OccurredAt,
		Correlation: raw.Correlation,
	}
	return nil
}
