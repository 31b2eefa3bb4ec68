package pipeline

import (
	"context"
	"errors"

	"github.com/stanstork/medequip-events/internal/event"
)

// Kind names one consumer of the pipeline.
type Kind string

const (
	KindAudit    Kind = "audit"
	KindMetrics  Kind = "metrics"
	KindAlerts   Kind = "alerts"
	KindNotify   Kind = "notify"
	KindSchedule Kind = "schedule"
)

// Outcome is the result of one consumer run. Err fails the attempt and
// triggers a retry of the whole chain; Degraded lists best-effort failures
// that were logged and tolerated.
type Outcome struct {
	Err      error
	Degraded []error
}

func Ok() Outcome { return Outcome{} }

func Fail(err error) Outcome { return Outcome{Err: err} }

// Degrade records a best-effort failure without failing the attempt.
func (o *Outcome) Degrade(err error) {
	if err != nil {
		o.Degraded = append(o.Degraded, err)
	}
}

// Consumer handles one envelope. Implementations must be safe to re-run for
// the same envelope: insert-only writes or idempotency claims.
type Consumer interface {
	Consume(ctx context.Context, env event.Envelope) Outcome
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc func(ctx context.Context, env event.Envelope) Outcome

func (f ConsumerFunc) Consume(ctx context.Context, env event.Envelope) Outcome {
	return f(ctx, env)
}

// DataError marks an envelope that cannot be processed as submitted.
// It is still retried within the budget, but reported as a data error.
type DataError struct {
	Err error
}

func (e *DataError) Error() string { return "invalid envelope: " + e.Err.Error() }
func (e *DataError) Unwrap() error { return e.Err }

func NewDataError(err error) error {
	if err == nil {
		return nil
	}
	return &DataError{Err: err}
}

const (
	ErrorKindData      = "data"
	ErrorKindTransient = "transient"
)

// ErrorKind classifies err for terminal failure reporting.
func ErrorKind(err error) string {
	var dataErr *DataError
	if errors.As(err, &dataErr) {
		return ErrorKindData
	}
	return ErrorKindTransient
}
