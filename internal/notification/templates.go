package notification

import (
	"fmt"
	"strings"

	"github.com/stanstork/medequip-events/internal/event"
)

var defaultEmailActions = []event.Action{event.ActionCreated, event.ActionEscalated, event.ActionOverdue}

// DefaultAlwaysEmail lists the per-category actions that always go out by
// mail regardless of priority. Categories not listed use created, escalated
// and overdue.
func DefaultAlwaysEmail() map[event.Category][]event.Action {
	return map[event.Category][]event.Action{
		event.CategoryContingency: {event.ActionCreated, event.ActionEscalated, event.ActionOverdue, event.ActionResolved},
		event.CategoryCalibration: {event.ActionOverdue, event.ActionFailed},
		event.CategoryMaintenance: {event.ActionOverdue, event.ActionFailed},
		event.CategoryTicket:      {event.ActionCreated, event.ActionEscalated, event.ActionAssigned, event.ActionOverdue},
		event.CategoryUser:        {event.ActionLoginFailed, event.ActionRoleChanged, event.ActionPermissionsChanged},
		event.CategoryAdmin:       {event.ActionRoleChanged, event.ActionPermissionsChanged, event.ActionDataExported},
		event.CategorySystem:      {event.ActionDatabaseReset, event.ActionConfigChanged, event.ActionFailed},
	}
}

// ParseAlwaysEmail converts configured overrides into typed actions merged
// over the defaults.
func ParseAlwaysEmail(overrides map[string][]string) map[event.Category][]event.Action {
	table := DefaultAlwaysEmail()
	for category, actions := range overrides {
		typed := make([]event.Action, 0, len(actions))
		for _, a := range actions {
			if a = strings.TrimSpace(a); a != "" {
				typed = append(typed, event.Action(a))
			}
		}
		table[event.Category(category)] = typed
	}
	return table
}

func titleFor(env event.Envelope) string {
	title := fmt.Sprintf("%s %s", capitalize(string(env.Category)), strings.ReplaceAll(string(env.Action), "_", " "))
	if env.Priority == event.PriorityCritical {
		return "Critical: " + title
	}
	return title
}

func messageFor(env event.Envelope) string {
	message := env.Describe()
	if env.Actor != nil && env.Actor.Name != "" {
		message += " by " + env.Actor.Name
	}
	return message
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
