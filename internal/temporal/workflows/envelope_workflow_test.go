package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/pipeline"
	"github.com/stanstork/medequip-events/internal/temporal"
	"github.com/stanstork/medequip-events/internal/temporal/activities"
)

func params() temporal.EnvelopeParams {
	return temporal.EnvelopeParams{
		Envelope: event.NewCalibrationEvent(event.ActionScheduled,
			event.WithSubject(event.LiveSubject{EntityType: "calibration", ID: "CAL-4"})),
	}
}

func TestEnvelopeWorkflow_Success(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &activities.Activities{}
	env.RegisterActivity(a)
	env.OnActivity(a.HandleEnvelopeActivity, mock.Anything, mock.Anything).
		Return(&temporal.HandleResult{Consumers: []string{"audit"}}, nil).Once()

	env.ExecuteWorkflow(EnvelopeWorkflow, params())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestEnvelopeWorkflow_ExhaustedRetriesRecordFailure(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &activities.Activities{}
	env.RegisterActivity(a)

	env.OnActivity(a.HandleEnvelopeActivity, mock.Anything, mock.Anything).
		Return(nil, sdktemporal.NewApplicationError("audit: connection refused", pipeline.ErrorKindTransient, "stack trace")).
		Times(3)

	var recorded temporal.FailureParams
	env.OnActivity(a.RecordTerminalFailureActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, p temporal.FailureParams) error {
			recorded = p
			return nil
		}).Once()

	in := params()
	env.ExecuteWorkflow(EnvelopeWorkflow, in)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	env.AssertExpectations(t)
	assert.Equal(t, in.Envelope.ID, recorded.Envelope.ID)
	assert.Equal(t, pipeline.ErrorKindTransient, recorded.ErrorKind)
	assert.Equal(t, "stack trace", recorded.Stack)
	assert.Contains(t, recorded.Error, "connection refused")
	assert.Equal(t, temporal.DefaultMaxAttempts, recorded.Attempts)
}

func TestEnvelopeWorkflow_ProcessingTimeoutRecordedAsTimeout(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	a := &activities.Activities{}
	env.RegisterActivity(a)

	calls := 0
	env.OnActivity(a.HandleEnvelopeActivity, mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ event.Envelope) (*temporal.HandleResult, error) {
			calls++
			if calls < 3 {
				return nil, sdktemporal.NewApplicationError("redis: i/o timeout", pipeline.ErrorKindTransient)
			}
			// The last attempt hangs until the processing timeout aborts it.
			<-ctx.Done()
			return nil, ctx.Err()
		})

	var recorded temporal.FailureParams
	env.OnActivity(a.RecordTerminalFailureActivity, mock.Anything, mock.Anything).
		Return(func(_ context.Context, p temporal.FailureParams) error {
			recorded = p
			return nil
		}).Once()

	in := params()
	in.ProcessingTimeout = 2 * time.Second
	env.ExecuteWorkflow(EnvelopeWorkflow, in)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	assert.Equal(t, 3, calls)
	assert.Equal(t, ErrorKindTimeout, recorded.ErrorKind)
	assert.Equal(t, in.Envelope.ID, recorded.Envelope.ID)
}
