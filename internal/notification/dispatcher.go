package notification

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/cache"
	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
)

// RecipientResolver computes who receives an envelope.
type RecipientResolver interface {
	Resolve(ctx context.Context, env event.Envelope) ([]models.User, error)
}

// Result summarizes one fan-out.
type Result struct {
	Sent     int
	Skipped  int
	Dropped  int
	Failures []error
}

// Dispatcher fans an envelope out to its recipients. Every recipient gets
// the database and broadcast channels; mail is added for critical envelopes
// and always-email actions. Sends over the hourly cap are dropped.
type Dispatcher struct {
	repo        repository.NotificationRepository
	resolver    RecipientResolver
	limiter     *RateLimiter
	claims      *cache.Claimer
	broadcast   Notifier
	mail        Notifier
	alwaysEmail map[event.Category][]event.Action
	logger      zerolog.Logger
}

type DispatcherConfig struct {
	Broadcast   Notifier
	Mail        Notifier
	AlwaysEmail map[event.Category][]event.Action
}

func NewDispatcher(
	repo repository.NotificationRepository,
	resolver RecipientResolver,
	limiter *RateLimiter,
	claims *cache.Claimer,
	cfg DispatcherConfig,
	logger zerolog.Logger,
) *Dispatcher {
	if cfg.AlwaysEmail == nil {
		cfg.AlwaysEmail = DefaultAlwaysEmail()
	}
	return &Dispatcher{
		repo:        repo,
		resolver:    resolver,
		limiter:     limiter,
		claims:      claims,
		broadcast:   cfg.Broadcast,
		mail:        cfg.Mail,
		alwaysEmail: cfg.AlwaysEmail,
		logger:      logger.With().Str("component", "notification_dispatcher").Logger(),
	}
}

// Channels returns the channels used for an envelope.
func (d *Dispatcher) Channels(env event.Envelope) []models.NotificationChannel {
	channels := []models.NotificationChannel{models.ChannelDatabase, models.ChannelBroadcast}
	if d.wantsMail(env) {
		channels = append(channels, models.ChannelMail)
	}
	return channels
}

func (d *Dispatcher) wantsMail(env event.Envelope) bool {
	if env.Priority == event.PriorityCritical {
		return true
	}
	actions, ok := d.alwaysEmail[env.Category]
	if !ok {
		actions = defaultEmailActions
	}
	return env.Action.In(actions...)
}

// Dispatch sends one notification per recipient. A recipient already
// notified for this envelope is skipped before the rate limit is consumed,
// so a retried envelope neither resends nor counts twice. Cache errors are
// returned; channel failures are collected in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, env event.Envelope, recipients []models.User) (Result, error) {
	var result Result
	channels := d.Channels(env)
	logger := d.logger.With().Str("envelope_id", env.ID).Str("category", string(env.Category)).Logger()

	for _, recipient := range recipients {
		claimParts := []string{"notified", env.ID, recipient.ID}
		claimed, err := d.claims.Claim(ctx, claimParts...)
		if err != nil {
			return result, errors.Wrap(err, "claim notification")
		}
		if !claimed {
			result.Skipped++
			continue
		}

		allowed, count, err := d.limiter.Allow(ctx, env.Category, env.Priority)
		if err != nil {
			if releaseErr := d.claims.Release(ctx, claimParts...); releaseErr != nil {
				logger.Warn().Err(releaseErr).Str("user_id", recipient.ID).Msg("failed to release notification claim")
			}
			return result, errors.Wrap(err, "consume notification rate limit")
		}
		if !allowed {
			result.Dropped++
			logger.Warn().
				Str("user_id", recipient.ID).
				Str("priority", string(env.Priority)).
				Int64("count", count).
				Int64("cap", d.limiter.Cap(env.Priority)).
				Msg("notification rate limit reached, dropping")
			continue
		}

		if err := d.send(ctx, env, recipient, channels); err != nil {
			result.Failures = append(result.Failures, err)
			continue
		}
		result.Sent++
	}
	return result, nil
}

func (d *Dispatcher) send(ctx context.Context, env event.Envelope, recipient models.User, channels []models.NotificationChannel) error {
	notif, err := d.repo.Create(ctx, repository.CreateNotificationParams{
		UserID:     recipient.ID,
		EnvelopeID: env.ID,
		Category:   string(env.Category),
		Action:     string(env.Action),
		Priority:   string(env.Priority),
		Title:      titleFor(env),
		Message:    messageFor(env),
		Metadata: map[string]interface{}{
			"subject_type": env.SubjectType(),
			"subject_id":   env.SubjectID(),
			"actor_id":     env.ActorID(),
			"channels":     channels,
		},
	})
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", recipient.ID).Str("envelope_id", env.ID).Msg("failed to persist notification")
		return errors.Wrapf(err, "database channel for %s", recipient.ID)
	}

	var firstErr error
	for _, channel := range channels {
		var notifier Notifier
		switch channel {
		case models.ChannelBroadcast:
			notifier = d.broadcast
		case models.ChannelMail:
			notifier = d.mail
		}
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, recipient, notif); err != nil {
			logNotifyError(d.logger, err, notifierChannelName(notifier), notif)
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "%s channel for %s", channel, recipient.ID)
			}
		}
	}
	return firstErr
}

// Consume resolves recipients and dispatches. Resolution and cache errors
// fail the attempt; per-recipient channel failures only degrade it.
func (d *Dispatcher) Consume(ctx context.Context, env event.Envelope) pipeline.Outcome {
	recipients, err := d.resolver.Resolve(ctx, env)
	if err != nil {
		return pipeline.Fail(errors.Wrap(err, "resolve recipients"))
	}
	result, err := d.Dispatch(ctx, env, recipients)
	if err != nil {
		return pipeline.Fail(err)
	}
	outcome := pipeline.Ok()
	for _, failure := range result.Failures {
		outcome.Degrade(failure)
	}
	d.logger.Debug().
		Str("envelope_id", env.ID).
		Int("recipients", len(recipients)).
		Int("sent", result.Sent).
		Int("skipped", result.Skipped).
		Int("dropped", result.Dropped).
		Msg("notifications dispatched")
	return outcome
}

// ListRecent returns a user's latest notifications.
func (d *Dispatcher) ListRecent(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	return d.repo.ListRecent(ctx, userID, limit)
}

func (d *Dispatcher) MarkRead(ctx context.Context, userID, notificationID string) (models.Notification, error) {
	return d.repo.MarkRead(ctx, userID, notificationID)
}
