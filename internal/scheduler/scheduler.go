package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
)

// Offset is one lead time relative to a target date. Negative durations
// fall before the target.
type Offset struct {
	Type  string
	Delta time.Duration
}

const day = 24 * time.Hour

var leadTimes = map[event.Category][]Offset{
	event.CategoryCalibration: {{"monthly", -30 * day}, {"weekly", -7 * day}, {"daily", -day}},
	event.CategoryMaintenance: {{"weekly", -7 * day}, {"daily", -day}},
	event.CategoryTraining:    {{"weekly", -7 * day}, {"daily", -day}},
}

var followUps = map[event.Priority][]Offset{
	event.PriorityCritical: {{"follow_up", time.Hour}, {"follow_up", 4 * time.Hour}, {"follow_up", 24 * time.Hour}},
	event.PriorityHigh:     {{"follow_up", 4 * time.Hour}, {"follow_up", 24 * time.Hour}},
	event.PriorityNormal:   {{"follow_up", 24 * time.Hour}},
}

var slaWindows = map[string]time.Duration{
	"critical": 2 * time.Hour,
	"urgent":   2 * time.Hour,
	"high":     8 * time.Hour,
	"medium":   24 * time.Hour,
	"low":      72 * time.Hour,
}

// SLAWindow returns the resolution window for a ticket priority. Unknown
// priorities get the medium window.
func SLAWindow(priority string) time.Duration {
	if w, ok := slaWindows[priority]; ok {
		return w
	}
	return slaWindows["medium"]
}

// SLADeadline computes the deadline of a ticket created at createdAt.
func SLADeadline(priority string, createdAt time.Time) time.Time {
	return createdAt.Add(SLAWindow(priority))
}

// Reminder is a computed reminder before persistence.
type Reminder struct {
	Type string
	At   time.Time
}

// Plan returns the reminders for the given offsets around target that land
// strictly after now.
func Plan(target, now time.Time, offsets []Offset) []Reminder {
	var reminders []Reminder
	for _, o := range offsets {
		at := target.Add(o.Delta)
		if at.After(now) {
			reminders = append(reminders, Reminder{Type: o.Type, At: at})
		}
	}
	return reminders
}

// Scheduler persists reminders, follow-ups and SLA escalations for
// time-bound entities.
type Scheduler struct {
	reminders   repository.ReminderRepository
	store       cache.Store
	slaCacheTTL time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

func NewScheduler(reminders repository.ReminderRepository, store cache.Store, slaCacheTTL time.Duration, logger zerolog.Logger) *Scheduler {
	if slaCacheTTL <= 0 {
		slaCacheTTL = 7 * day
	}
	return &Scheduler{
		reminders:   reminders,
		store:       store,
		slaCacheTTL: slaCacheTTL,
		now:         time.Now,
		logger:      logger.With().Str("component", "scheduler").Logger(),
	}
}

// ScheduleReminders persists the lead-time reminders before the envelope's
// scheduled_date and returns how many were written.
func (s *Scheduler) ScheduleReminders(ctx context.Context, env event.Envelope) (int, error) {
	offsets, ok := leadTimes[env.Category]
	if !ok {
		return 0, nil
	}
	target, ok := env.Payload.Time("scheduled_date")
	if !ok {
		return 0, nil
	}
	return s.persist(ctx, env, Plan(target, s.now(), offsets), map[string]interface{}{
		"scheduled_date": target.UTC().Format(time.RFC3339),
	})
}

// ScheduleFollowUps persists contingency follow-ups after the occurrence,
// spaced by priority.
func (s *Scheduler) ScheduleFollowUps(ctx context.Context, env event.Envelope) (int, error) {
	offsets := followUps[env.Priority]
	return s.persist(ctx, env, Plan(env.OccurredAt, s.now(), offsets), map[string]interface{}{
		"priority": string(env.Priority),
	})
}

// ScheduleSLA caches the ticket's SLA deadline and persists an escalation
// reminder at the deadline.
func (s *Scheduler) ScheduleSLA(ctx context.Context, env event.Envelope) (time.Time, error) {
	createdAt, ok := env.Payload.Time("created_at")
	if !ok {
		createdAt = env.OccurredAt
	}
	priority := env.Payload.Lower("priority")
	deadline := SLADeadline(priority, createdAt)

	ticketID := env.SubjectID()
	if ticketID == "" {
		return time.Time{}, pipeline.NewDataError(fmt.Errorf("ticket %s has no id to compute an SLA for", env.Action))
	}
	if err := s.store.Set(ctx, SLAKey(ticketID), deadline.UTC().Format(time.RFC3339), s.slaCacheTTL); err != nil {
		return time.Time{}, errors.Wrap(err, "cache sla deadline")
	}
	reminders := Plan(deadline, s.now(), []Offset{{Type: "sla_escalation"}})
	if _, err := s.persist(ctx, env, reminders, map[string]interface{}{
		"priority":     priority,
		"sla_deadline": deadline.UTC().Format(time.RFC3339),
	}); err != nil {
		return time.Time{}, err
	}
	return deadline, nil
}

// SLAKey is the cache key of a ticket's deadline.
func SLAKey(ticketID string) string {
	return cache.Key("ticket_sla", ticketID)
}

// CachedSLA reads a deadline previously stored by ScheduleSLA.
func (s *Scheduler) CachedSLA(ctx context.Context, ticketID string) (time.Time, error) {
	raw, err := s.store.Get(ctx, SLAKey(ticketID))
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}

// Consume dispatches on the envelope's category and action.
func (s *Scheduler) Consume(ctx context.Context, env event.Envelope) pipeline.Outcome {
	var err error
	switch env.Category {
	case event.CategoryCalibration, event.CategoryMaintenance, event.CategoryTraining:
		if env.Action.In(event.ActionCreated, event.ActionScheduled, event.ActionUpdated) {
			_, err = s.ScheduleReminders(ctx, env)
		}
	case event.CategoryContingency:
		if env.Action.In(event.ActionCreated, event.ActionEscalated) {
			_, err = s.ScheduleFollowUps(ctx, env)
		}
	case event.CategoryTicket:
		if env.Action == event.ActionCreated || (env.Action == event.ActionUpdated && env.Payload.String("priority") != "") {
			_, err = s.ScheduleSLA(ctx, env)
		}
	}
	if err != nil {
		return pipeline.Fail(err)
	}
	return pipeline.Ok()
}

func (s *Scheduler) persist(ctx context.Context, env event.Envelope, reminders []Reminder, data map[string]interface{}) (int, error) {
	relatedType := env.SubjectType()
	relatedID := env.SubjectID()
	if relatedID == "" {
		return 0, pipeline.NewDataError(fmt.Errorf("%s %s has no subject id to schedule against", env.Category, env.Action))
	}
	for i, r := range reminders {
		payload := map[string]interface{}{"envelope_id": env.ID}
		for k, v := range data {
			payload[k] = v
		}
		if _, err := s.reminders.Create(ctx, repository.CreateReminderParams{
			RelatedType:  relatedType,
			RelatedID:    relatedID,
			ReminderDate: r.At.UTC(),
			ReminderType: r.Type,
			Data:         payload,
		}); err != nil {
			return i, errors.Wrapf(err, "persist %s reminder", r.Type)
		}
	}
	if len(reminders) > 0 {
		s.logger.Debug().
			Str("envelope_id", env.ID).
			Str("related_type", relatedType).
			Str("related_id", relatedID).
			Int("count", len(reminders)).
			Msg("reminders scheduled")
	}
	return len(reminders), nil
}
