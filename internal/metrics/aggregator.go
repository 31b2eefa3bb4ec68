package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
)

var granularities = []models.MetricGranularity{models.GranularityDaily, models.GranularityHourly}

// Aggregator maintains daily and hourly counters per category/action pair.
type Aggregator struct {
	repo   repository.MetricRepository
	claims *cache.Claimer
	logger zerolog.Logger
}

func NewAggregator(repo repository.MetricRepository, claims *cache.Claimer, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		repo:   repo,
		claims: claims,
		logger: logger.With().Str("component", "metrics_aggregator").Logger(),
	}
}

// Increment adds one to the daily and hourly counters of ref, bucketed by
// the envelope's occurrence time. Each granularity is guarded by an
// idempotency claim on the envelope ID, so a retried envelope is counted once.
func (a *Aggregator) Increment(ctx context.Context, env event.Envelope, ref Ref) error {
	for _, g := range granularities {
		claimParts := []string{"metric_applied", env.ID, string(g), ref.Type, ref.Key}
		claimed, err := a.claims.Claim(ctx, claimParts...)
		if err != nil {
			return errors.Wrap(err, "claim metric increment")
		}
		if !claimed {
			a.logger.Debug().Str("envelope_id", env.ID).Str("metric", ref.Type+"/"+ref.Key).Msg("increment already applied")
			continue
		}
		if _, err := a.repo.Add(ctx, counterKey(ref, g, env.OccurredAt), 1); err != nil {
			if releaseErr := a.claims.Release(ctx, claimParts...); releaseErr != nil {
				a.logger.Warn().Err(releaseErr).Str("envelope_id", env.ID).Msg("failed to release metric claim")
			}
			return err
		}
	}
	return nil
}

// RecordValue stores a gauge value for both granularities. Setting the same
// value twice is harmless, so no claim is needed.
func (a *Aggregator) RecordValue(ctx context.Context, env event.Envelope, ref Ref, value float64) error {
	for _, g := range granularities {
		if _, err := a.repo.Set(ctx, counterKey(ref, g, env.OccurredAt), value); err != nil {
			return err
		}
	}
	return nil
}

// Consume applies every counter and gauge of the envelope.
func (a *Aggregator) Consume(ctx context.Context, env event.Envelope) pipeline.Outcome {
	for _, ref := range CountersFor(env) {
		if err := a.Increment(ctx, env, ref); err != nil {
			return pipeline.Fail(err)
		}
	}
	for _, gauge := range GaugesFor(env) {
		if err := a.RecordValue(ctx, env, gauge.Ref, gauge.Value); err != nil {
			return pipeline.Fail(err)
		}
	}
	return pipeline.Ok()
}

func counterKey(ref Ref, g models.MetricGranularity, at time.Time) repository.CounterKey {
	at = at.UTC()
	key := repository.CounterKey{
		MetricType:  ref.Type,
		Granularity: g,
		MetricKey:   ref.Key,
		Date:        time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
	}
	if g == models.GranularityHourly {
		hour := at.Hour()
		key.Hour = &hour
	}
	return key
}

// DailyKey returns the daily counter key of ref for the day containing at.
func DailyKey(ref Ref, at time.Time) repository.CounterKey {
	return counterKey(ref, models.GranularityDaily, at)
}
