package metrics

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/stanstork/medequip-events/internal/repository"
)

const (
	DirectionIncreasing = "increasing"
	DirectionDecreasing = "decreasing"
	DirectionStable     = "stable"
)

type Trend struct {
	MetricType  string    `json:"metric_type"`
	MetricKey   string    `json:"metric_key"`
	Slope       float64   `json:"slope"`
	Intercept   float64   `json:"intercept"`
	Direction   string    `json:"direction"`
	Values      []float64 `json:"values"`
	Threshold   float64   `json:"threshold"`
	Significant bool      `json:"significant"`
}

// Regression fits y = slope*x + intercept by ordinary least squares with
// x = 1..n.
func Regression(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i + 1)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denominator
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

func DirectionOf(slope float64) string {
	switch {
	case slope > 0:
		return DirectionIncreasing
	case slope < 0:
		return DirectionDecreasing
	}
	return DirectionStable
}

type TrendConfig struct {
	WindowDays       int
	MinPoints        int
	DefaultThreshold float64
	Thresholds       map[string]float64
}

// TrendDetector fits a line through the recent daily values of a metric.
type TrendDetector struct {
	repo repository.MetricRepository
	cfg  TrendConfig
}

func NewTrendDetector(repo repository.MetricRepository, cfg TrendConfig) *TrendDetector {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = 3
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = 1.5
	}
	return &TrendDetector{repo: repo, cfg: cfg}
}

// Threshold returns the significance threshold configured for a metric key.
func (d *TrendDetector) Threshold(metricKey string) float64 {
	if t, ok := d.cfg.Thresholds[metricKey]; ok && t > 0 {
		return t
	}
	return d.cfg.DefaultThreshold
}

// Detect computes the trend over the window ending on the day of asOf. ok is
// false when fewer than MinPoints values exist.
func (d *TrendDetector) Detect(ctx context.Context, ref Ref, asOf time.Time) (Trend, bool, error) {
	day := DailyKey(ref, asOf).Date
	since := day.AddDate(0, 0, -(d.cfg.WindowDays - 1))
	points, err := d.repo.DailySeries(ctx, ref.Type, ref.Key, since)
	if err != nil {
		return Trend{}, false, errors.Wrapf(err, "load series for %s/%s", ref.Type, ref.Key)
	}
	if len(points) < d.cfg.MinPoints {
		return Trend{}, false, nil
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	slope, intercept := Regression(values)
	threshold := d.Threshold(ref.Key)
	return Trend{
		MetricType:  ref.Type,
		MetricKey:   ref.Key,
		Slope:       slope,
		Intercept:   intercept,
		Direction:   DirectionOf(slope),
		Values:      values,
		Threshold:   threshold,
		Significant: math.Abs(slope) > threshold,
	}, true, nil
}
