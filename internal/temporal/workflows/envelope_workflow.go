package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/workflow"

	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/temporal"
	"github.com/stanstork/medequip-events/internal/temporal/activities"
)

// ErrorKindTimeout marks attempts aborted by the processing timeout.
const ErrorKindTimeout = "timeout"

// EnvelopeWorkflow runs the consumer chain of one envelope with the retry
// budget, then reports the envelope as failed once retries are exhausted.
func EnvelopeWorkflow(ctx workflow.Context, params temporal.EnvelopeParams) error {
	timeout := params.ProcessingTimeout
	if timeout <= 0 {
		timeout = temporal.DefaultProcessingTimeout
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = temporal.DefaultMaxAttempts
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    attempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	logger := workflow.GetLogger(ctx)
	env := params.Envelope
	logger.Info("Handling envelope", "EnvelopeID", env.ID, "Category", env.Category, "Action", env.Action)

	// Proxy only; the implementation is registered on the worker.
	var a *activities.Activities

	var result temporal.HandleResult
	err := workflow.ExecuteActivity(ctx, a.HandleEnvelopeActivity, env).Get(ctx, &result)
	if err == nil {
		logger.Info("Envelope handled", "EnvelopeID", env.ID, "Degraded", result.Degraded)
		return nil
	}

	failure := temporal.FailureParams{
		Envelope:  env,
		ErrorKind: pipeline.ErrorKindTransient,
		Error:     err.Error(),
		Attempts:  attempts,
	}
	var appErr *sdktemporal.ApplicationError
	var timeoutErr *sdktemporal.TimeoutError
	switch {
	case errors.As(err, &appErr):
		failure.Error = appErr.Error()
		if appErr.Type() != "" {
			failure.ErrorKind = appErr.Type()
		}
		if appErr.HasDetails() {
			var stack string
			if detailsErr := appErr.Details(&stack); detailsErr == nil {
				failure.Stack = stack
			}
		}
	case errors.As(err, &timeoutErr):
		failure.ErrorKind = ErrorKindTimeout
	}
	logger.Error("Envelope failed after retries.", "EnvelopeID", env.ID, "ErrorKind", failure.ErrorKind, "error", err)

	// A disconnected context so the failure is recorded even if the
	// workflow is being cancelled.
	failureCtx, _ := workflow.NewDisconnectedContext(ctx)
	failureCtx = workflow.WithActivityOptions(failureCtx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 5,
		},
	})
	if recordErr := workflow.ExecuteActivity(failureCtx, a.RecordTerminalFailureActivity, failure).Get(failureCtx, nil); recordErr != nil {
		logger.Error("Failed to record terminal failure.", "EnvelopeID", env.ID, "error", recordErr)
	}
	return err
}
