package alerting

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/metrics"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
)

const (
	TypeThreshold        = "threshold"
	TypeTrend            = "trend"
	TypeBusinessCritical = "business_critical"
	TypePipelineFailure  = "pipeline_failure"
)

type Config struct {
	Cooldown   time.Duration
	AlertTTL   time.Duration
	Thresholds map[string]Threshold
	// ClaimTTL bounds how long a retried envelope is recognized as having
	// already raised its business-critical alerts.
	ClaimTTL time.Duration
}

// Engine emits threshold, trend and business-critical alerts. Duplicate
// threshold and trend alerts are suppressed by a cooldown marker in the
// shared cache, claimed atomically so concurrent workers fire at most once.
type Engine struct {
	alerts     repository.AlertRepository
	metrics    repository.MetricRepository
	trends     *metrics.TrendDetector
	store      cache.Store
	claims     *cache.Claimer
	thresholds map[string]Threshold
	cooldown   time.Duration
	alertTTL   time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewEngine(
	alerts repository.AlertRepository,
	metricRepo repository.MetricRepository,
	trends *metrics.TrendDetector,
	store cache.Store,
	cfg Config,
	logger zerolog.Logger,
) *Engine {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Hour
	}
	if cfg.AlertTTL <= 0 {
		cfg.AlertTTL = 24 * time.Hour
	}
	if cfg.Thresholds == nil {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Engine{
		alerts:     alerts,
		metrics:    metricRepo,
		trends:     trends,
		store:      store,
		claims:     cache.NewClaimer(store, cfg.ClaimTTL),
		thresholds: cfg.Thresholds,
		cooldown:   cfg.Cooldown,
		alertTTL:   cfg.AlertTTL,
		now:        time.Now,
		logger:     logger.With().Str("component", "alert_engine").Logger(),
	}
}

// ThresholdFor returns the configured bounds for a metric key.
func (e *Engine) ThresholdFor(metricKey string) (Threshold, bool) {
	t, ok := e.thresholds[metricKey]
	return t, ok
}

// EvaluateThreshold checks value against the bounds of ref and creates an
// alert on breach unless the cooldown for ref is active. Breaches raised by
// a business-critical envelope are forced to critical and skip the cooldown.
// It returns the created alert, or nil when nothing fired.
func (e *Engine) EvaluateThreshold(ctx context.Context, env event.Envelope, ref metrics.Ref, value float64) (*models.Alert, error) {
	threshold, ok := e.thresholds[ref.Key]
	if !ok {
		return nil, nil
	}
	breach, breached := threshold.Check(value)
	if !breached {
		return nil, nil
	}

	forced := env.IsBusinessCritical()
	if forced {
		breach.Severity = models.SeverityCritical
	}

	params := repository.CreateAlertParams{
		Type:     TypeThreshold,
		Title:    fmt.Sprintf("%s %s threshold exceeded", humanize(ref.Type), humanize(ref.Key)),
		Message:  fmt.Sprintf("%s: %s (last event: %s)", ref.Type+"/"+ref.Key, breach, env.Describe()),
		Severity: breach.Severity,
		Data: map[string]interface{}{
			"metric_type":  ref.Type,
			"metric_key":   ref.Key,
			"value":        value,
			"bound":        breach.Bound,
			"limit":        breach.Limit,
			"envelope_id":  env.ID,
			"forced":       forced,
			"triggered_at": e.now().UTC().Format(time.RFC3339),
		},
		CreatedBy: env.ActorID(),
	}
	if forced {
		return e.createOnce(ctx, []string{"business_alert", env.ID, TypeThreshold, ref.Type, ref.Key}, params)
	}
	return e.createWithCooldown(ctx, cache.Key("threshold_alert", ref.Type, ref.Key), env.ID, params)
}

// RaiseTrend creates a trend alert for a significant trend, subject to the
// same cooldown scheme as threshold alerts.
func (e *Engine) RaiseTrend(ctx context.Context, env event.Envelope, trend metrics.Trend) (*models.Alert, error) {
	if !trend.Significant {
		return nil, nil
	}
	severity := models.SeverityMedium
	if math.Abs(trend.Slope) > 5 {
		severity = models.SeverityHigh
	}
	params := repository.CreateAlertParams{
		Type:     TypeTrend,
		Title:    fmt.Sprintf("%s is %s", humanize(trend.MetricKey), trend.Direction),
		Message:  fmt.Sprintf("%s/%s changes by %.2f per day over the last %d days", trend.MetricType, trend.MetricKey, trend.Slope, len(trend.Values)),
		Severity: severity,
		Data: map[string]interface{}{
			"metric_type": trend.MetricType,
			"metric_key":  trend.MetricKey,
			"slope":       trend.Slope,
			"intercept":   trend.Intercept,
			"direction":   trend.Direction,
			"values":      trend.Values,
			"threshold":   trend.Threshold,
			"envelope_id": env.ID,
		},
		CreatedBy: env.ActorID(),
	}
	return e.createWithCooldown(ctx, cache.Key("trend_alert", trend.MetricType, trend.MetricKey), env.ID, params)
}

// EvaluateEnvelope fires a critical alert for business-critical envelopes.
// No cooldown applies, but a retried envelope does not fire twice.
func (e *Engine) EvaluateEnvelope(ctx context.Context, env event.Envelope) (*models.Alert, error) {
	if !env.IsBusinessCritical() {
		return nil, nil
	}
	claim := []string{"business_alert", env.ID, TypeBusinessCritical, string(env.Category), string(env.Action)}
	return e.createOnce(ctx, claim, repository.CreateAlertParams{
		Type:     TypeBusinessCritical,
		Title:    "Critical " + string(env.Category) + " event",
		Message:  env.Describe(),
		Severity: models.SeverityCritical,
		Data: map[string]interface{}{
			"envelope_id": env.ID,
			"category":    string(env.Category),
			"action":      string(env.Action),
			"subject":     env.SubjectType() + ":" + env.SubjectID(),
			"actor_id":    env.ActorID(),
		},
		CreatedBy: env.ActorID(),
	})
}

// RaiseTerminalFailure surfaces an envelope whose retries were exhausted.
func (e *Engine) RaiseTerminalFailure(ctx context.Context, env event.Envelope, errorKind, message string) (*models.Alert, error) {
	severity := models.SeverityHigh
	if env.Priority == event.PriorityCritical {
		severity = models.SeverityCritical
	}
	return e.create(ctx, repository.CreateAlertParams{
		Type:     TypePipelineFailure,
		Title:    "Event processing failed",
		Message:  fmt.Sprintf("%s: %s", env.Describe(), message),
		Severity: severity,
		Data: map[string]interface{}{
			"envelope_id": env.ID,
			"category":    string(env.Category),
			"action":      string(env.Action),
			"error_kind":  errorKind,
		},
		CreatedBy: env.ActorID(),
	})
}

// Consume evaluates the envelope's counters and gauges against their
// thresholds, runs the trend detector for dashboard gauges and raises the
// business-critical alert. Counter values are read from the store, so it
// does not depend on running after the metrics consumer in the same attempt.
func (e *Engine) Consume(ctx context.Context, env event.Envelope) pipeline.Outcome {
	for _, ref := range metrics.CountersFor(env) {
		if _, ok := e.thresholds[ref.Key]; !ok {
			continue
		}
		value, err := e.metrics.Current(ctx, metrics.DailyKey(ref, env.OccurredAt))
		if err != nil {
			return pipeline.Fail(errors.Wrapf(err, "read counter %s/%s", ref.Type, ref.Key))
		}
		if _, err := e.EvaluateThreshold(ctx, env, ref, value); err != nil {
			return pipeline.Fail(err)
		}
	}

	for _, gauge := range metrics.GaugesFor(env) {
		if _, err := e.EvaluateThreshold(ctx, env, gauge.Ref, gauge.Value); err != nil {
			return pipeline.Fail(err)
		}
		if env.Category != event.CategoryDashboard || e.trends == nil {
			continue
		}
		trend, ok, err := e.trends.Detect(ctx, gauge.Ref, env.OccurredAt)
		if err != nil {
			return pipeline.Fail(err)
		}
		if !ok {
			continue
		}
		if _, err := e.RaiseTrend(ctx, env, trend); err != nil {
			return pipeline.Fail(err)
		}
	}

	if _, err := e.EvaluateEnvelope(ctx, env); err != nil {
		return pipeline.Fail(err)
	}
	return pipeline.Ok()
}

func (e *Engine) createWithCooldown(ctx context.Context, key, owner string, params repository.CreateAlertParams) (*models.Alert, error) {
	acquired, err := e.store.SetNX(ctx, key, owner, e.cooldown)
	if err != nil {
		return nil, errors.Wrap(err, "claim alert cooldown")
	}
	if !acquired {
		e.logger.Debug().Str("cooldown_key", key).Msg("alert suppressed by cooldown")
		return nil, nil
	}
	alert, err := e.create(ctx, params)
	if err != nil {
		if delErr := e.store.Del(ctx, key); delErr != nil {
			e.logger.Warn().Err(delErr).Str("cooldown_key", key).Msg("failed to release alert cooldown")
		}
		return nil, err
	}
	return alert, nil
}

// createOnce creates the alert at most once per claim. The claim is released
// when the insert fails so the next attempt can raise it.
func (e *Engine) createOnce(ctx context.Context, claim []string, params repository.CreateAlertParams) (*models.Alert, error) {
	claimed, err := e.claims.Claim(ctx, claim...)
	if err != nil {
		return nil, errors.Wrap(err, "claim business alert")
	}
	if !claimed {
		e.logger.Debug().Str("claim", cache.Key(claim...)).Msg("alert already raised for envelope")
		return nil, nil
	}
	alert, err := e.create(ctx, params)
	if err != nil {
		if relErr := e.claims.Release(ctx, claim...); relErr != nil {
			e.logger.Warn().Err(relErr).Str("claim", cache.Key(claim...)).Msg("failed to release business alert claim")
		}
		return nil, err
	}
	return alert, nil
}

func (e *Engine) create(ctx context.Context, params repository.CreateAlertParams) (*models.Alert, error) {
	if params.Type != TypeBusinessCritical && params.Type != TypePipelineFailure {
		expiresAt := e.now().UTC().Add(e.alertTTL)
		params.ExpiresAt = &expiresAt
	}
	alert, err := e.alerts.Create(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s alert", params.Type)
	}
	e.logger.Info().
		Str("alert_id", alert.ID).
		Str("type", alert.Type).
		Str("severity", string(alert.Severity)).
		Msg(alert.Title)
	return &alert, nil
}

func humanize(s string) string {
	s = strings.NewReplacer("_", " ", ":", " ").Replace(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
