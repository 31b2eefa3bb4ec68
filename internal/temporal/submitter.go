package temporal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/client"

	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/pipeline"
)

// EnvelopeWorkflowName is the registered name of EnvelopeWorkflow.
const EnvelopeWorkflowName = "EnvelopeWorkflow"

// WorkflowStarter is the part of the Temporal client used to enqueue.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// Submitter enqueues envelopes for the worker pool.
type Submitter struct {
	starter           WorkflowStarter
	taskQueue         string
	processingTimeout time.Duration
	maxAttempts       int32
	logger            zerolog.Logger
}

func NewSubmitter(starter WorkflowStarter, taskQueue string, processingTimeout time.Duration, maxAttempts int32, logger zerolog.Logger) *Submitter {
	if taskQueue == "" {
		taskQueue = TaskQueueName
	}
	return &Submitter{
		starter:           starter,
		taskQueue:         taskQueue,
		processingTimeout: processingTimeout,
		maxAttempts:       maxAttempts,
		logger:            logger.With().Str("component", "envelope_submitter").Logger(),
	}
}

// Submit validates the envelope and starts its workflow. It returns the
// workflow run ID.
func (s *Submitter) Submit(ctx context.Context, env event.Envelope) (string, error) {
	if err := env.Validate(); err != nil {
		return "", pipeline.NewDataError(err)
	}
	run, err := s.starter.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        WorkflowID(env.ID),
		TaskQueue: s.taskQueue,
	}, EnvelopeWorkflowName, EnvelopeParams{
		Envelope:          env,
		ProcessingTimeout: s.processingTimeout,
		MaxAttempts:       s.maxAttempts,
	})
	if err != nil {
		return "", errors.Wrapf(err, "start workflow for envelope %s", env.ID)
	}
	s.logger.Info().
		Str("envelope_id", env.ID).
		Str("category", string(env.Category)).
		Str("action", string(env.Action)).
		Str("priority", string(env.Priority)).
		Str("run_id", run.GetRunID()).
		Msg("envelope submitted")
	return run.GetRunID(), nil
}
