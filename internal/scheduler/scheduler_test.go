package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
)

var now = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T) (*Scheduler, *repository.MemoryReminderRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := repository.NewMemoryReminderRepo()
	s := NewScheduler(repo, cache.NewRedisStore(client), 0, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s, repo, mr
}

func clock() event.Option {
	return event.WithClock(func() time.Time { return now })
}

func TestCalibrationTenDaysOutSchedulesWeeklyAndDaily(t *testing.T) {
	s, repo, _ := newScheduler(t)
	target := now.AddDate(0, 0, 10)
	env := event.NewCalibrationEvent(event.ActionScheduled, clock(),
		event.WithSubject(event.LiveSubject{EntityType: "calibration", ID: "CAL-1"}),
		event.WithPayload(event.Payload{"scheduled_date": target.Format(time.RFC3339)}))

	require.NoError(t, s.Consume(context.Background(), env).Err)

	reminders := repo.Reminders()
	require.Len(t, reminders, 2)
	assert.Equal(t, "weekly", reminders[0].ReminderType)
	assert.Equal(t, target.AddDate(0, 0, -7), reminders[0].ReminderDate)
	assert.Equal(t, "daily", reminders[1].ReminderType)
	assert.Equal(t, target.AddDate(0, 0, -1), reminders[1].ReminderDate)
	assert.Equal(t, "CAL-1", reminders[0].RelatedID)
	assert.Equal(t, env.ID, reminders[0].Data["envelope_id"])
}

func TestPlan_OnlyFutureOffsets(t *testing.T) {
	offsets := leadTimes[event.CategoryCalibration]

	assert.Len(t, Plan(now.AddDate(0, 0, 40), now, offsets), 3)
	assert.Len(t, Plan(now.AddDate(0, 0, 3), now, offsets), 1)
	assert.Empty(t, Plan(now.Add(12*time.Hour), now, offsets))
	assert.Empty(t, Plan(now.AddDate(0, 0, 1), now, offsets), "an offset landing exactly on now is not in the future")
}

func TestMaintenanceWithoutDateSchedulesNothing(t *testing.T) {
	s, repo, _ := newScheduler(t)
	env := event.NewMaintenanceEvent(event.ActionCreated, clock(),
		event.WithSubject(event.LiveSubject{EntityType: "maintenance", ID: "M-1"}))

	require.NoError(t, s.Consume(context.Background(), env).Err)
	assert.Empty(t, repo.Reminders())
}

func TestContingencyFollowUpsByPriority(t *testing.T) {
	s, repo, _ := newScheduler(t)
	critical := event.NewContingencyEvent(event.ActionCreated, clock(),
		event.WithSubject(event.LiveSubject{EntityType: "contingency", ID: "C-1"}),
		event.WithPayload(event.Payload{"impact_level": "critical"}))

	require.NoError(t, s.Consume(context.Background(), critical).Err)

	reminders := repo.Reminders()
	require.Len(t, reminders, 3)
	assert.Equal(t, now.Add(time.Hour), reminders[0].ReminderDate)
	assert.Equal(t, now.Add(4*time.Hour), reminders[1].ReminderDate)
	assert.Equal(t, now.Add(24*time.Hour), reminders[2].ReminderDate)

	high := event.NewContingencyEvent(event.ActionCreated, clock(),
		event.WithSubject(event.LiveSubject{EntityType: "contingency", ID: "C-2"}))
	require.NoError(t, s.Consume(context.Background(), high).Err)
	assert.Len(t, repo.Reminders(), 5)
}

func TestSLADeadline(t *testing.T) {
	created := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, created.Add(2*time.Hour), SLADeadline("critical", created))
	assert.Equal(t, created.Add(8*time.Hour), SLADeadline("high", created))
	assert.Equal(t, created.Add(24*time.Hour), SLADeadline("medium", created))
	assert.Equal(t, created.Add(72*time.Hour), SLADeadline("low", created))
	assert.Equal(t, created.Add(24*time.Hour), SLADeadline("", created))
}

func TestTicketSLAIsCachedAndEscalationScheduled(t *testing.T) {
	s, repo, mr := newScheduler(t)
	env := event.NewTicketEvent(event.ActionCreated, clock(),
		event.WithSubject(event.LiveSubject{EntityType: "ticket", ID: "T-77"}),
		event.WithPayload(event.Payload{"priority": "Critical"}))

	require.NoError(t, s.Consume(context.Background(), env).Err)

	deadline, err := s.CachedSLA(context.Background(), "T-77")
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), deadline)
	assert.Equal(t, 7*24*time.Hour, mr.TTL("ticket_sla:T-77"))

	reminders := repo.Reminders()
	require.Len(t, reminders, 1)
	assert.Equal(t, "sla_escalation", reminders[0].ReminderType)
	assert.Equal(t, now.Add(2*time.Hour), reminders[0].ReminderDate)
}

func TestMissingSubjectIsDataError(t *testing.T) {
	s, _, _ := newScheduler(t)
	env := event.NewTicketEvent(event.ActionCreated, clock(), event.WithPayload(event.Payload{"priority": "low"}))

	outcome := s.Consume(context.Background(), env)

	require.Error(t, outcome.Err)
	assert.Equal(t, pipeline.ErrorKindData, pipeline.ErrorKind(outcome.Err))
}
