package event

import (
	"errors"
	"fmt"
)

type classifier func(Action, Payload) Priority

var classifiers = map[Category]classifier{
	CategoryTicket:      classifyTicket,
	CategoryContingency: classifyContingency,
	CategoryCalibration: classifyCriticalFlag,
	CategoryMaintenance: classifyCriticalFlag,
	CategoryUser:        classifyUser,
	CategoryAdmin:       classifyAdmin,
	CategorySystem:      classifySystem,
	CategoryEquipment:   classifyEquipment,
}

// Classify derives the priority of an envelope from its category, action and
// payload. Categories without dedicated rules raise deletions and overdue
// entities to high.
func Classify(env Envelope) Priority {
	if fn, ok := classifiers[env.Category]; ok {
		return fn(env.Action, env.Payload)
	}
	if env.Action.In(ActionDeleted, ActionOverdue) {
		return PriorityHigh
	}
	return PriorityNormal
}

func classifyTicket(action Action, p Payload) Priority {
	switch p.Lower("priority") {
	case "urgent", "critical", "high":
		return PriorityCritical
	}
	if action == ActionEscalated {
		return PriorityCritical
	}
	if action.In(ActionCreated, ActionAssigned, ActionStatusChanged, ActionReopened) || p.Bool("is_overdue") {
		return PriorityHigh
	}
	return PriorityNormal
}

func classifyContingency(action Action, p Payload) Priority {
	impact := p.Lower("impact_level")
	if impact == "critical" || action == ActionEscalated {
		return PriorityCritical
	}
	if impact == "high" || action.In(ActionCreated, ActionOverdue) {
		return PriorityHigh
	}
	return PriorityNormal
}

// classifyCriticalFlag covers calibration and maintenance, which both carry
// an is_critical flag on the equipment they target.
func classifyCriticalFlag(action Action, p Payload) Priority {
	critical := p.Bool("is_critical")
	failing := action.In(ActionOverdue, ActionFailed)
	switch {
	case critical && failing:
		return PriorityCritical
	case critical || failing:
		return PriorityHigh
	}
	return PriorityNormal
}

// failedLoginCriticalAttempts is the number of consecutive failures that makes
// a failed login critical.
const failedLoginCriticalAttempts = 5

func classifyUser(action Action, p Payload) Priority {
	if action == ActionLoginFailed {
		if n, ok := p.Int("failed_attempts"); ok && n >= failedLoginCriticalAttempts {
			return PriorityCritical
		}
		return PriorityHigh
	}
	if action == ActionLogin && (p.Bool("suspicious") || p.Bool("new_device")) {
		return PriorityHigh
	}
	if action.In(ActionRoleChanged, ActionPermissionsChanged, ActionDeleted) {
		return PriorityHigh
	}
	return PriorityNormal
}

func classifyAdmin(action Action, p Payload) Priority {
	if action.In(ActionRoleChanged, ActionPermissionsChanged) {
		return PriorityCritical
	}
	if action == ActionDataExported && p.Bool("sensitive") {
		return PriorityCritical
	}
	if action.In(ActionDeleted, ActionDataExported) {
		return PriorityHigh
	}
	return PriorityNormal
}

func classifySystem(action Action, _ Payload) Priority {
	switch action {
	case ActionDatabaseReset:
		return PriorityCritical
	case ActionConfigChanged, ActionFailed:
		return PriorityHigh
	}
	return PriorityNormal
}

func classifyEquipment(action Action, p Payload) Priority {
	if action == ActionDeleted {
		return PriorityHigh
	}
	if action == ActionStatusChanged && p.Lower("status") == "out_of_service" {
		return PriorityHigh
	}
	return PriorityNormal
}

// IsSecuritySensitive reports envelopes that belong to the security audit
// stream: authentication, role/permission and configuration changes.
func (e Envelope) IsSecuritySensitive() bool {
	if e.Action.In(ActionLogin, ActionLogout, ActionLoginFailed, ActionRoleChanged, ActionPermissionsChanged) {
		return true
	}
	if e.Action.In(ActionConfigChanged, ActionDatabaseReset, ActionDataExported) {
		return true
	}
	return false
}

// IsBusinessCritical reports envelopes whose alerts are always critical and
// never suppressed by a cooldown.
func (e Envelope) IsBusinessCritical() bool {
	switch {
	case e.Category == CategoryContingency && e.Priority == PriorityCritical:
		return true
	case e.Action == ActionDatabaseReset:
		return true
	case e.Action == ActionDataExported && e.Payload.Bool("sensitive"):
		return true
	case e.Action.In(ActionRoleChanged, ActionPermissionsChanged):
		return true
	}
	return false
}

var (
	ErrMissingCategory = errors.New("envelope category is required")
	ErrMissingAction   = errors.New("envelope action is required")
	ErrMissingIdentity = errors.New("envelope payload lacks identity fields")
)

// Validate checks the fields every consumer depends on.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return errors.New("envelope id is required")
	}
	if e.Category == "" {
		return ErrMissingCategory
	}
	if !e.Category.Valid() {
		return fmt.Errorf("unknown envelope category %q", e.Category)
	}
	if e.Action == "" {
		return ErrMissingAction
	}
	if e.Category == CategoryDashboard || e.Category == CategorySystem {
		return nil
	}
	if e.SubjectID() == "" && e.label() == "" {
		return fmt.Errorf("%w: %s %s", ErrMissingIdentity, e.Category, e.Action)
	}
	return nil
}
