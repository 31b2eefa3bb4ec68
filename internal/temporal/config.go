package temporal

import (
	"time"

	"github.com/stanstork/medequip-events/internal/event"
)

// TaskQueueName is the default task queue for envelope workflows.
const TaskQueueName = "MEDEQUIP_EVENTS"

// EnvelopeWorkflowIDPrefix prefixes the workflow ID of each envelope, so a
// resubmitted envelope maps onto the same workflow.
const EnvelopeWorkflowIDPrefix = "envelope-"

// DefaultProcessingTimeout bounds one attempt at handling an envelope.
const DefaultProcessingTimeout = 90 * time.Second

// DefaultMaxAttempts is the retry budget of the consumer chain.
const DefaultMaxAttempts int32 = 3

// EnvelopeParams is the input of EnvelopeWorkflow.
type EnvelopeParams struct {
	Envelope          event.Envelope
	ProcessingTimeout time.Duration
	MaxAttempts       int32
}

// HandleResult summarizes a successful attempt.
type HandleResult struct {
	EnvelopeID string
	Consumers  []string
	Degraded   int
	Duration   time.Duration
}

// FailureParams is the input of the terminal failure activity.
type FailureParams struct {
	Envelope  event.Envelope
	ErrorKind string
	Error     string
	Stack     string
	Attempts  int32
}

// WorkflowID returns the workflow ID of an envelope.
func WorkflowID(envelopeID string) string {
	return EnvelopeWorkflowIDPrefix + envelopeID
}
