package audit

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
)

// Writer appends one audit row per envelope and mirrors it as a human
// readable line on the stream's log channel.
type Writer struct {
	repo     repository.AuditRepository
	channels map[models.AuditStream]zerolog.Logger
}

func NewWriter(repo repository.AuditRepository, logger zerolog.Logger) *Writer {
	base := logger.With().Str("component", "audit_writer").Logger()
	return &Writer{
		repo: repo,
		channels: map[models.AuditStream]zerolog.Logger{
			models.AuditStreamBusiness: base.With().Str("channel", string(models.AuditStreamBusiness)).Logger(),
			models.AuditStreamSecurity: base.With().Str("channel", string(models.AuditStreamSecurity)).Logger(),
		},
	}
}

// StreamFor routes security-sensitive envelopes to the security stream.
func StreamFor(env event.Envelope) models.AuditStream {
	if env.IsSecuritySensitive() {
		return models.AuditStreamSecurity
	}
	return models.AuditStreamBusiness
}

// Record inserts the audit row. Storage errors are returned so the envelope
// is retried; the log line is best-effort.
func (w *Writer) Record(ctx context.Context, env event.Envelope, fields map[string]interface{}) error {
	stream := StreamFor(env)
	oldValues, newValues := diffValues(env)

	id, err := w.repo.Append(ctx, repository.AppendAuditParams{
		EnvelopeID:    env.ID,
		Stream:        stream,
		Event:         string(env.Category) + "." + string(env.Action),
		AuditableType: env.SubjectType(),
		AuditableID:   env.SubjectID(),
		UserID:        env.ActorID(),
		OldValues:     oldValues,
		NewValues:     newValues,
		IPAddress:     env.Correlation.IP,
		UserAgent:     env.Correlation.UserAgent,
		Description:   env.Describe(),
		OccurredAt:    env.OccurredAt,
	})
	if err != nil {
		return err
	}

	w.log(stream, env, id, fields)
	return nil
}

// Consume adapts Record to the pipeline. Derived fields are the correlation
// session and the priority.
func (w *Writer) Consume(ctx context.Context, env event.Envelope) pipeline.Outcome {
	fields := map[string]interface{}{"priority": string(env.Priority)}
	if env.Correlation.SessionID != "" {
		fields["session_id"] = env.Correlation.SessionID
	}
	if err := w.Record(ctx, env, fields); err != nil {
		return pipeline.Fail(err)
	}
	return pipeline.Ok()
}

func (w *Writer) log(stream models.AuditStream, env event.Envelope, id int64, fields map[string]interface{}) {
	logger := w.channels[stream]
	entry := logger.Info()
	if stream == models.AuditStreamSecurity && env.Priority == event.PriorityCritical {
		entry = logger.Warn()
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		entry = entry.Interface(k, fields[k])
	}
	entry.
		Int64("audit_id", id).
		Str("envelope_id", env.ID).
		Str("actor_id", env.ActorID()).
		Str("ip", env.Correlation.IP).
		Msg(env.Describe())
}

// diffValues takes old/new values from the payload "before"/"after" maps.
// Deletions without a "before" fall back to the snapshot; creations without
// an "after" fall back to the payload itself.
func diffValues(env event.Envelope) (map[string]interface{}, map[string]interface{}) {
	before := env.Payload.Map("before")
	after := env.Payload.Map("after")

	if before == nil {
		if snap, ok := env.Subject.(event.SnapshotSubject); ok {
			before = snap.Fields
		}
	}
	if after == nil && before == nil && env.Action != event.ActionDeleted && len(env.Payload) > 0 {
		after = env.Payload
	}
	return before, after
}
