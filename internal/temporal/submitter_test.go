package temporal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"

	"github.com/stanstork/medequip-events/internal/event"
	"github.com/stanstork/medequip-events/internal/pipeline"
)

type mockStarter struct {
	mock.Mock
}

func (m *mockStarter) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error) {
	called := m.Called(options, workflow, args[0])
	run, _ := called.Get(0).(client.WorkflowRun)
	return run, called.Error(1)
}

type stubRun struct {
	client.WorkflowRun
	runID string
}

func (r stubRun) GetRunID() string { return r.runID }

func TestSubmitStartsWorkflowPerEnvelope(t *testing.T) {
	starter := &mockStarter{}
	env := event.NewTicketEvent(event.ActionCreated,
		event.WithSubject(event.LiveSubject{EntityType: "ticket", ID: "T-1"}))

	starter.On("ExecuteWorkflow",
		client.StartWorkflowOptions{ID: "envelope-" + env.ID, TaskQueue: TaskQueueName},
		EnvelopeWorkflowName,
		EnvelopeParams{Envelope: env, ProcessingTimeout: 90 * time.Second, MaxAttempts: 3},
	).Return(stubRun{runID: "run-7"}, nil)

	submitter := NewSubmitter(starter, "", DefaultProcessingTimeout, DefaultMaxAttempts, zerolog.Nop())
	runID, err := submitter.Submit(context.Background(), env)

	require.NoError(t, err)
	assert.Equal(t, "run-7", runID)
	starter.AssertExpectations(t)
}

func TestSubmitRejectsInvalidEnvelopeWithoutEnqueueing(t *testing.T) {
	starter := &mockStarter{}
	submitter := NewSubmitter(starter, "", DefaultProcessingTimeout, DefaultMaxAttempts, zerolog.Nop())

	_, err := submitter.Submit(context.Background(), event.Envelope{ID: "env-1"})

	require.Error(t, err)
	assert.Equal(t, pipeline.ErrorKindData, pipeline.ErrorKind(err))
	starter.AssertNotCalled(t, "ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitWrapsStartFailure(t *testing.T) {
	starter := &mockStarter{}
	starter.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("frontend unavailable"))
	submitter := NewSubmitter(starter, "", DefaultProcessingTimeout, DefaultMaxAttempts, zerolog.Nop())
	env := event.NewSystemEvent(event.Action("backup_completed"))

	_, err := submitter.Submit(context.Background(), env)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "frontend unavailable")
	assert.Equal(t, pipeline.ErrorKindTransient, pipeline.ErrorKind(err))
}
