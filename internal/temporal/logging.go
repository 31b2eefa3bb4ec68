package temporal

import (
	"github.com/rs/zerolog"
	"go.temporal.io/sdk/log"
)

// LogAdapter routes Temporal SDK logs through zerolog. Workflow and activity
// loggers built with With keep their fields on the zerolog context.
type LogAdapter struct {
	logger zerolog.Logger
}

var (
	_ log.Logger     = (*LogAdapter)(nil)
	_ log.WithLogger = (*LogAdapter)(nil)
)

func NewLogAdapter(logger zerolog.Logger) *LogAdapter {
	return &LogAdapter{logger: logger.With().Str("component", "temporal").Logger()}
}

func (a *LogAdapter) Debug(msg string, keyvals ...interface{}) {
	a.logger.Debug().Fields(pairs(keyvals)).Msg(msg)
}

func (a *LogAdapter) Info(msg string, keyvals ...interface{}) {
	a.logger.Info().Fields(pairs(keyvals)).Msg(msg)
}

func (a *LogAdapter) Warn(msg string, keyvals ...interface{}) {
	a.logger.Warn().Fields(pairs(keyvals)).Msg(msg)
}

func (a *LogAdapter) Error(msg string, keyvals ...interface{}) {
	a.logger.Error().Fields(pairs(keyvals)).Msg(msg)
}

func (a *LogAdapter) With(keyvals ...interface{}) log.Logger {
	return &LogAdapter{logger: a.logger.With().Fields(pairs(keyvals)).Logger()}
}

// pairs turns alternating key/value arguments into a field map. A dangling
// key gets a placeholder value; non-string keys are stringified.
func pairs(keyvals []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			key = "invalid_key"
		}
		if i+1 >= len(keyvals) {
			fields[key] = "MISSING_VALUE"
			continue
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			fields[key] = err.Error()
			continue
		}
		fields[key] = keyvals[i+1]
	}
	return fields
}
