package alerting

import (
	"fmt"

	"github.com/stanstork/medequip-events/internal/models"
)

// Threshold holds the static bounds for one metric key. A nil bound is not
// checked. Critical applies in the direction of the metric: an upper bound
// when Max is set, a lower bound when only Min is set.
type Threshold struct {
	Max         *float64             `mapstructure:"max"`
	MaxSeverity models.AlertSeverity `mapstructure:"max_severity"`
	Min         *float64             `mapstructure:"min"`
	MinSeverity models.AlertSeverity `mapstructure:"min_severity"`
	Critical    *float64             `mapstructure:"critical"`
}

// Breach describes which bound a value crossed.
type Breach struct {
	Bound    string
	Limit    float64
	Value    float64
	Severity models.AlertSeverity
}

func (b Breach) String() string {
	return fmt.Sprintf("%s bound %.2f crossed with %.2f", b.Bound, b.Limit, b.Value)
}

// Check evaluates value against the critical, max and min bounds in that
// order and returns the first breach.
func (t Threshold) Check(value float64) (Breach, bool) {
	if t.Critical != nil {
		limit := *t.Critical
		upper := t.Max != nil || t.Min == nil
		if (upper && value >= limit) || (!upper && value <= limit) {
			return Breach{Bound: "critical", Limit: limit, Value: value, Severity: models.SeverityCritical}, true
		}
	}
	if t.Max != nil && value > *t.Max {
		return Breach{Bound: "max", Limit: *t.Max, Value: value, Severity: severityOr(t.MaxSeverity, models.SeverityHigh)}, true
	}
	if t.Min != nil && value < *t.Min {
		return Breach{Bound: "min", Limit: *t.Min, Value: value, Severity: severityOr(t.MinSeverity, models.SeverityMedium)}, true
	}
	return Breach{}, false
}

func severityOr(s, fallback models.AlertSeverity) models.AlertSeverity {
	if s == "" {
		return fallback
	}
	return s
}

func bound(v float64) *float64 { return &v }

// DefaultThresholds is the built-in table, keyed by metric key. Counter
// values are daily totals; dashboard keys are gauge values.
func DefaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		"priority:critical":      {Max: bound(20), MaxSeverity: models.SeverityHigh, Critical: bound(50)},
		"escalated":              {Max: bound(5), MaxSeverity: models.SeverityHigh, Critical: bound(15)},
		"overdue":                {Max: bound(10), MaxSeverity: models.SeverityMedium, Critical: bound(25)},
		"login_failed":           {Max: bound(20), MaxSeverity: models.SeverityHigh, Critical: bound(50)},
		"failed":                 {Max: bound(5), MaxSeverity: models.SeverityMedium, Critical: bound(20)},
		"equipment_availability": {Min: bound(90), MinSeverity: models.SeverityHigh, Critical: bound(75)},
		"open_tickets":           {Max: bound(50), MaxSeverity: models.SeverityMedium, Critical: bound(100)},
		"overdue_calibrations":   {Max: bound(5), MaxSeverity: models.SeverityHigh, Critical: bound(15)},
		"overdue_maintenances":   {Max: bound(10), MaxSeverity: models.SeverityMedium, Critical: bound(25)},
		"duration_minutes":       {Max: bound(480), MaxSeverity: models.SeverityLow},
	}
}
