package models

import "time"

type MetricGranularity string

const (
	GranularityDaily  MetricGranularity = "daily"
	GranularityHourly MetricGranularity = "hourly"
)

// MetricCounter is keyed by (metric_type, category, metric_key, date, hour).
// Hour is nil for daily rows.
type MetricCounter struct {
	MetricType string            `json:"metric_type" db:"metric_type"`
	Category   MetricGranularity `json:"category" db:"category"`
	MetricKey  string            `json:"metric_key" db:"metric_key"`
	Date       time.Time         `json:"date" db:"date"`
	Hour       *int              `json:"hour,omitempty" db:"hour"`
	Value      float64           `json:"value" db:"value"`
}

// MetricPoint is one daily value used by the trend detector.
type MetricPoint struct {
	Date  time.Time `json:"date" db:"date"`
	Value float64   `json:"value" db:"value"`
}
