package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.temporal.io/sdk/activity"

	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/models"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/repository"
	"github.com/stanstork/medequip-events/internal/temporal"
)

// EnvelopeHandler runs the consumer chain of one envelope.
type EnvelopeHandler interface {
	Handle(ctx context.Context, env event.Envelope) (pipeline.Report, error)
}

// FailureAlerter raises the operator alert for a failed envelope.
type FailureAlerter interface {
	RaiseTerminalFailure(ctx context.Context, env event.Envelope, errorKind, message string) (*models.Alert, error)
}

type Activities struct {
	Handler  EnvelopeHandler
	Failures repository.FailureRepository
	Alerter  FailureAlerter
}

// HandleEnvelopeActivity runs one attempt. Failures are returned as
// application errors typed with the error kind and carrying the stack, so
// the workflow can report them after the last attempt.
func (a *Activities) HandleEnvelopeActivity(ctx context.Context, env event.Envelope) (*temporal.HandleResult, error) {
	logger := activity.GetLogger(ctx)
	attempt := activity.GetInfo(ctx).Attempt
	logger.Info("Running consumer chain", "EnvelopeID", env.ID, "Attempt", attempt)

	report, err := a.Handler.Handle(ctx, env)
	if err != nil {
		logger.Error("Consumer chain failed", "EnvelopeID", env.ID, "Attempt", attempt, "Failed", report.Failed(), "error", err)
		stack := fmt.Sprintf("%+v", errors.WithStack(err))
		return nil, sdktemporal.NewApplicationError(err.Error(), pipeline.ErrorKind(err), stack)
	}

	result := &temporal.HandleResult{EnvelopeID: env.ID, Duration: report.Duration}
	for kind, outcome := range report.Outcomes {
		result.Consumers = append(result.Consumers, string(kind))
		result.Degraded += len(outcome.Degraded)
	}
	return result, nil
}

// RecordTerminalFailureActivity makes an exhausted envelope visible to
// operators: an error log, a failed_envelopes row and an alert. The row is
// required; the alert is best-effort.
func (a *Activities) RecordTerminalFailureActivity(ctx context.Context, params temporal.FailureParams) error {
	logger := activity.GetLogger(ctx)
	env := params.Envelope
	logger.Error("Envelope exhausted retries",
		"EnvelopeID", env.ID,
		"Category", env.Category,
		"Action", env.Action,
		"ActorID", env.ActorID(),
		"ErrorKind", params.ErrorKind,
		"Attempts", params.Attempts,
		"error", params.Error,
		"stack", params.Stack,
	)

	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal failed envelope")
	}
	record := models.FailedEnvelope{
		EnvelopeID: env.ID,
		Category:   string(env.Category),
		Action:     string(env.Action),
		ErrorKind:  params.ErrorKind,
		Error:      params.Error,
		Stack:      params.Stack,
		Attempts:   params.Attempts,
		Envelope:   raw,
		FailedAt:   time.Now().UTC(),
	}
	if actorID := env.ActorID(); actorID != "" {
		record.ActorID = &actorID
	}
	if _, err := a.Failures.Create(ctx, record); err != nil {
		return errors.Wrap(err, "record failed envelope")
	}

	if a.Alerter != nil {
		if _, err := a.Alerter.RaiseTerminalFailure(ctx, env, params.ErrorKind, params.Error); err != nil {
			logger.Warn("Failed to raise terminal failure alert", "EnvelopeID", env.ID, "error", err)
		}
	}
	return nil
}
