package event

import (
	"time"

	"github.com/google/uuid"
)

// Option customizes an envelope built by New.
type Option func(*Envelope)

func WithActor(id, name string) Option {
	return func(e *Envelope) {
		if id == "" {
			return
		}
		e.Actor = &UserRef{ID: id, Name: name}
	}
}

func WithSubject(s Subject) Option {
	return func(e *Envelope) { e.Subject = s }
}

func WithPayload(p Payload) Option {
	return func(e *Envelope) { e.Payload = p }
}

func WithCorrelation(c Correlation) Option {
	return func(e *Envelope) { e.Correlation = c }
}

// WithID fixes the envelope ID, e.g. when an upstream caller already owns one.
func WithID(id string) Option {
	return func(e *Envelope) {
		if id != "" {
			e.ID = id
		}
	}
}

// WithClock overrides the source of OccurredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Envelope) { e.OccurredAt = now().UTC() }
}

// New builds an envelope and classifies its priority. It performs no I/O.
func New(category Category, action Action, opts ...Option) Envelope {
	env := Envelope{
		ID:         uuid.NewString(),
		Category:   category,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&env)
	}
	if env.Payload == nil {
		env.Payload = Payload{}
	}
	env.Priority = Classify(env)
	return env
}

// Category-specific constructors used by business-action code.

func NewTicketEvent(action Action, opts ...Option) Envelope {
	return New(CategoryTicket, action, opts...)
}

func NewContingencyEvent(action Action, opts ...Option) Envelope {
	return New(CategoryContingency, action, opts...)
}

func NewCalibrationEvent(action Action, opts ...Option) Envelope {
	return New(CategoryCalibration, action, opts...)
}

func NewMaintenanceEvent(action Action, opts ...Option) Envelope {
	return New(CategoryMaintenance, action, opts...)
}

func NewEquipmentEvent(action Action, opts ...Option) Envelope {
	return New(CategoryEquipment, action, opts...)
}

func NewUserEvent(action Action, opts ...Option) Envelope {
	return New(CategoryUser, action, opts...)
}

func NewSystemEvent(action Action, opts ...Option) Envelope {
	return New(CategorySystem, action, opts...)
}
