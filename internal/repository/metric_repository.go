package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/stanstork/medequip-events/internal/models"
)

// CounterKey identifies one metric counter row.
type CounterKey struct {
	MetricType  string
	Granularity models.MetricGranularity
	MetricKey   string
	Date        time.Time
	Hour        *int
}

type MetricRepository interface {
	// Add atomically creates the counter if absent and adds delta to it.
	Add(ctx context.Context, key CounterKey, delta float64) (float64, error)
	// Set upserts a gauge value.
	Set(ctx context.Context, key CounterKey, value float64) (float64, error)
	// Current returns the counter value, or zero when the row does not exist.
	Current(ctx context.Context, key CounterKey) (float64, error)
	// DailySeries returns daily values since the given date in chronological order.
	DailySeries(ctx context.Context, metricType, metricKey string, since time.Time) ([]models.MetricPoint, error)
}

type metricRepository struct {
	db *sql.DB
}

func NewMetricRepository(db *sql.DB) MetricRepository {
	return &metricRepository{db: db}
}

func (r *metricRepository) Add(ctx context.Context, key CounterKey, delta float64) (float64, error) {
	const query = `
		INSERT INTO pipeline.metric_counters (metric_type, category, metric_key, date, hour, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (metric_type, category, metric_key, date, hour)
		DO UPDATE SET value = pipeline.metric_counters.value + EXCLUDED.value, updated_at = NOW()
		RETURNING value
	`
	return r.upsert(ctx, query, key, delta)
}

func (r *metricRepository) Set(ctx context.Context, key CounterKey, value float64) (float64, error) {
	const query = `
		INSERT INTO pipeline.metric_counters (metric_type, category, metric_key, date, hour, value)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (metric_type, category, metric_key, date, hour)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
		RETURNING value
	`
	return r.upsert(ctx, query, key, value)
}

func (r *metricRepository) upsert(ctx context.Context, query string, key CounterKey, value float64) (float64, error) {
	var hour interface{}
	if key.Hour != nil {
		hour = *key.Hour
	}
	var current float64
	err := r.db.QueryRowContext(ctx, query,
		key.MetricType,
		key.Granularity,
		key.MetricKey,
		key.Date.Format("2006-01-02"),
		hour,
		value,
	).Scan(&current)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert metric %s/%s", key.MetricType, key.MetricKey)
	}
	return current, nil
}

func (r *metricRepository) Current(ctx context.Context, key CounterKey) (float64, error) {
	const query = `
		SELECT value
		FROM pipeline.metric_counters
		WHERE metric_type = $1 AND category = $2 AND metric_key = $3 AND date = $4 AND hour IS NOT DISTINCT FROM $5
	`
	var hour interface{}
	if key.Hour != nil {
		hour = *key.Hour
	}
	var value float64
	err := r.db.QueryRowContext(ctx, query,
		key.MetricType, key.Granularity, key.MetricKey, key.Date.Format("2006-01-02"), hour,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read metric %s/%s", key.MetricType, key.MetricKey)
	}
	return value, nil
}

func (r *metricRepository) DailySeries(ctx context.Context, metricType, metricKey string, since time.Time) ([]models.MetricPoint, error) {
	const query = `
		SELECT date, value
		FROM pipeline.metric_counters
		WHERE metric_type = $1 AND metric_key = $2 AND category = 'daily' AND date >= $3
		ORDER BY date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, metricType, metricKey, since.Format("2006-01-02"))
	if err != nil {
		return nil, errors.Wrap(err, "query daily series")
	}
	defer rows.Close()

	var points []models.MetricPoint
	for rows.Next() {
		var p models.MetricPoint
		if err := rows.Scan(&p.Date, &p.Value); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
