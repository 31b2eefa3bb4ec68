package metrics

import (
	"sort"

	"github.com/stanstork/medequip-events/internal/event"
)

// Ref identifies a metric by (metric_type, metric_key).
type Ref struct {
	Type string
	Key  string
}

// Gauge is a value observed on an envelope rather than counted.
type Gauge struct {
	Ref
	Value float64
}

// CountersFor returns the counters an envelope increments: the
// category/action pair, the priority tier and the category total.
func CountersFor(env event.Envelope) []Ref {
	category := string(env.Category)
	return []Ref{
		{Type: category, Key: string(env.Action)},
		{Type: category, Key: "priority:" + string(env.Priority)},
		{Type: category, Key: "total"},
	}
}

// GaugesFor extracts gauge observations: dashboard metric snapshots under
// payload "metrics" and durations reported on completion.
func GaugesFor(env event.Envelope) []Gauge {
	var gauges []Gauge
	if env.Category == event.CategoryDashboard {
		snapshot := env.Payload.Map("metrics")
		keys := make([]string, 0, len(snapshot))
		for k := range snapshot {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if v, ok := snapshot.Float(k); ok {
				gauges = append(gauges, Gauge{Ref: Ref{Type: string(event.CategoryDashboard), Key: k}, Value: v})
			}
		}
	}
	if env.Action == event.ActionCompleted {
		if v, ok := env.Payload.Float("duration_minutes"); ok {
			gauges = append(gauges, Gauge{Ref: Ref{Type: string(env.Category), Key: "duration_minutes"}, Value: v})
		}
	}
	return gauges
}
