package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/metrics"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/repository"
)

type fixture struct {
	mr      *miniredis.Miniredis
	store   cache.Store
	alerts  *repository.MemoryAlertRepo
	metrics *repository.MemoryMetricRepo
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		mr:      mr,
		store:   cache.NewRedisStore(client),
		alerts:  repository.NewMemoryAlertRepo(),
		metrics: repository.NewMemoryMetricRepo(),
	}
	detector := metrics.NewTrendDetector(f.metrics, metrics.TrendConfig{})
	f.engine = NewEngine(f.alerts, f.metrics, detector, f.store, Config{}, zerolog.Nop())
	return f
}

func (f *fixture) activeAlerts(t *testing.T) []models.Alert {
	t.Helper()
	alerts, err := f.alerts.ListActive(context.Background(), 0)
	require.NoError(t, err)
	return alerts
}

func equipmentEnvelope() event.Envelope {
	return event.NewEquipmentEvent(event.ActionUpdated,
		event.WithSubject(event.LiveSubject{EntityType: "equipment", ID: "EQ-9"}),
		event.WithPayload(event.Payload{"code": "EQ-9", "name": "Ventilator"}))
}

func TestThreshold_Check(t *testing.T) {
	upper := Threshold{Max: bound(10), MaxSeverity: models.SeverityMedium, Critical: bound(20)}
	breach, ok := upper.Check(25)
	require.True(t, ok)
	assert.Equal(t, "critical", breach.Bound)
	assert.Equal(t, models.SeverityCritical, breach.Severity)

	breach, ok = upper.Check(11)
	require.True(t, ok)
	assert.Equal(t, "max", breach.Bound)
	assert.Equal(t, models.SeverityMedium, breach.Severity)

	_, ok = upper.Check(10)
	assert.False(t, ok)

	lower := Threshold{Min: bound(90), Critical: bound(75)}
	breach, ok = lower.Check(80)
	require.True(t, ok)
	assert.Equal(t, "min", breach.Bound)
	assert.Equal(t, models.SeverityMedium, breach.Severity)

	breach, ok = lower.Check(70)
	require.True(t, ok)
	assert.Equal(t, "critical", breach.Bound)
}

func TestEvaluateThreshold_CooldownDeduplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := metrics.Ref{Type: "ticket", Key: "escalated"}

	first, err := f.engine.EvaluateThreshold(ctx, equipmentEnvelope(), ref, 6)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.engine.EvaluateThreshold(ctx, equipmentEnvelope(), ref, 7)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, f.activeAlerts(t), 1)

	f.mr.FastForward(time.Hour + time.Minute)

	third, err := f.engine.EvaluateThreshold(ctx, equipmentEnvelope(), ref, 8)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Len(t, f.activeAlerts(t), 2)
}

func TestEvaluateThreshold_NoBreachNoAlert(t *testing.T) {
	f := newFixture(t)

	alert, err := f.engine.EvaluateThreshold(context.Background(), equipmentEnvelope(), metrics.Ref{Type: "ticket", Key: "escalated"}, 2)

	require.NoError(t, err)
	assert.Nil(t, alert)
	assert.False(t, f.mr.Exists("threshold_alert:ticket:escalated"))
}

type failingAlertRepo struct{ err error }

func (r failingAlertRepo) Create(context.Context, repository.CreateAlertParams) (models.Alert, error) {
	return models.Alert{}, r.err
}

func (r failingAlertRepo) ListActive(context.Context, int) ([]models.Alert, error) { return nil, nil }

func TestEvaluateThreshold_ReleasesCooldownOnInsertFailure(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(failingAlertRepo{err: errors.New("db down")}, f.metrics, nil, f.store, Config{}, zerolog.Nop())

	_, err := engine.EvaluateThreshold(context.Background(), equipmentEnvelope(), metrics.Ref{Type: "ticket", Key: "escalated"}, 9)

	require.Error(t, err)
	assert.False(t, f.mr.Exists("threshold_alert:ticket:escalated"))
}

func TestBusinessCriticalBypassesCooldownAndForcesSeverity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roleChange := func() event.Envelope {
		return event.New(event.CategoryAdmin, event.ActionRoleChanged,
			event.WithActor("admin-1", "Root"),
			event.WithSubject(event.LiveSubject{EntityType: "user", ID: "u-7"}),
			event.WithPayload(event.Payload{"name": "Jordan"}))
	}
	env := roleChange()
	ref := metrics.Ref{Type: "ticket", Key: "overdue"}

	// Distinct envelopes within the cooldown each fire.
	for _, e := range []event.Envelope{env, roleChange()} {
		alert, err := f.engine.EvaluateThreshold(ctx, e, ref, 11)
		require.NoError(t, err)
		require.NotNil(t, alert)
		assert.Equal(t, models.SeverityCritical, alert.Severity)
	}

	alert, err := f.engine.EvaluateEnvelope(ctx, env)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, TypeBusinessCritical, alert.Type)
	assert.Nil(t, alert.ExpiresAt)
	require.NotNil(t, alert.CreatedBy)
	assert.Equal(t, "admin-1", *alert.CreatedBy)
}

func TestRaiseTrend_Severity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steep, err := f.engine.RaiseTrend(ctx, equipmentEnvelope(), metrics.Trend{
		MetricType: "dashboard", MetricKey: "open_tickets", Slope: 6.5, Direction: metrics.DirectionIncreasing, Significant: true,
	})
	require.NoError(t, err)
	require.NotNil(t, steep)
	assert.Equal(t, models.SeverityHigh, steep.Severity)

	mild, err := f.engine.RaiseTrend(ctx, equipmentEnvelope(), metrics.Trend{
		MetricType: "dashboard", MetricKey: "availability", Slope: -2, Direction: metrics.DirectionDecreasing, Significant: true,
	})
	require.NoError(t, err)
	require.NotNil(t, mild)
	assert.Equal(t, models.SeverityMedium, mild.Severity)

	none, err := f.engine.RaiseTrend(ctx, equipmentEnvelope(), metrics.Trend{MetricType: "dashboard", MetricKey: "x", Slope: 0.4})
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestConsume_ReadsCountersAndRunsTrend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	escalated := metrics.Ref{Type: "ticket", Key: "escalated"}
	_, err := f.metrics.Set(ctx, metrics.DailyKey(escalated, now), 6)
	require.NoError(t, err)
	ticket := event.NewTicketEvent(event.ActionEscalated,
		event.WithClock(func() time.Time { return now }),
		event.WithSubject(event.LiveSubject{EntityType: "ticket", ID: "T-3"}))

	outcome := f.engine.Consume(ctx, ticket)
	require.NoError(t, outcome.Err)
	assert.True(t, f.mr.Exists("threshold_alert:ticket:escalated"))

	openTickets := metrics.Ref{Type: "dashboard", Key: "open_tickets"}
	for i, v := range []float64{10, 20, 30} {
		_, err := f.metrics.Set(ctx, metrics.DailyKey(openTickets, now.AddDate(0, 0, i-2)), v)
		require.NoError(t, err)
	}
	dashboard := event.New(event.CategoryDashboard, event.ActionMetricsUpdated,
		event.WithClock(func() time.Time { return now }),
		event.WithPayload(event.Payload{"metrics": map[string]interface{}{"open_tickets": 30}}))

	outcome = f.engine.Consume(ctx, dashboard)
	require.NoError(t, outcome.Err)
	assert.True(t, f.mr.Exists("trend_alert:dashboard:open_tickets"))

	var types []string
	for _, a := range f.activeAlerts(t) {
		types = append(types, a.Type)
	}
	assert.ElementsMatch(t, []string{TypeThreshold, TypeTrend}, types)
}

func TestBusinessCriticalAlertRaisedOncePerEnvelope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	env := event.NewSystemEvent(event.ActionDatabaseReset, event.WithActor("admin-1", "Root"))

	for attempt := 0; attempt < 3; attempt++ {
		require.NoError(t, f.engine.Consume(ctx, env).Err)
	}
	require.Len(t, f.activeAlerts(t), 1)

	require.NoError(t, f.engine.Consume(ctx, event.NewSystemEvent(event.ActionDatabaseReset)).Err)
	assert.Len(t, f.activeAlerts(t), 2)
}

func TestBusinessCriticalClaimReleasedOnInsertFailure(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(failingAlertRepo{err: errors.New("db down")}, f.metrics, nil, f.store, Config{}, zerolog.Nop())
	env := event.NewSystemEvent(event.ActionDatabaseReset)

	_, err := engine.EvaluateEnvelope(context.Background(), env)
	require.Error(t, err)

	alert, err := f.engine.EvaluateEnvelope(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, alert)
}
