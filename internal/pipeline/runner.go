package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/medequip-events/internal/event"
)

// Report summarizes one attempt at handling an envelope.
type Report struct {
	EnvelopeID string
	Outcomes   map[Kind]Outcome
	Duration   time.Duration
}

// Failed returns the consumers whose outcome failed the attempt.
func (r Report) Failed() []Kind {
	var failed []Kind
	for kind, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, kind)
		}
	}
	return failed
}

// Runner executes the consumer chain for an envelope.
type Runner struct {
	routes    Routes
	consumers map[Kind]Consumer
	logger    zerolog.Logger
}

func NewRunner(routes Routes, consumers map[Kind]Consumer, logger zerolog.Logger) *Runner {
	if routes == nil {
		routes = DefaultRoutes()
	}
	return &Runner{
		routes:    routes,
		consumers: consumers,
		logger:    logger.With().Str("component", "pipeline_runner").Logger(),
	}
}

// Handle runs every consumer registered for the envelope's category in
// order. A failing consumer does not stop the others; the returned error
// joins the failures of the attempt.
func (r *Runner) Handle(ctx context.Context, env event.Envelope) (Report, error) {
	start := time.Now()
	report := Report{EnvelopeID: env.ID, Outcomes: make(map[Kind]Outcome)}

	if err := env.Validate(); err != nil {
		return report, NewDataError(err)
	}

	logger := r.logger.With().
		Str("envelope_id", env.ID).
		Str("category", string(env.Category)).
		Str("action", string(env.Action)).
		Str("priority", string(env.Priority)).
		Logger()

	var errs []error
	for _, kind := range r.routes.For(env.Category) {
		consumer, ok := r.consumers[kind]
		if !ok {
			logger.Debug().Str("consumer", string(kind)).Msg("no consumer registered, skipping")
			continue
		}

		outcome := r.run(ctx, kind, consumer, env)
		report.Outcomes[kind] = outcome

		for _, degraded := range outcome.Degraded {
			logger.Warn().Err(degraded).Str("consumer", string(kind)).Msg("best-effort step failed")
		}
		if outcome.Err != nil {
			logger.Error().Err(outcome.Err).Str("consumer", string(kind)).Msg("consumer failed")
			errs = append(errs, fmt.Errorf("%s: %w", kind, outcome.Err))
		}
	}

	report.Duration = time.Since(start)
	if len(errs) > 0 {
		return report, errors.Join(errs...)
	}
	logger.Debug().Dur("duration", report.Duration).Msg("envelope handled")
	return report, nil
}

func (r *Runner) run(ctx context.Context, kind Kind, consumer Consumer, env event.Envelope) (outcome Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("consumer", string(kind)).
				Str("envelope_id", env.ID).
				Bytes("stack", debug.Stack()).
				Msgf("consumer panicked: %v", rec)
			outcome = Fail(fmt.Errorf("panic: %v", rec))
		}
	}()
	return consumer.Consume(ctx, env)
}
