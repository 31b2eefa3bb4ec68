package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/models"
)

// Notifier delivers an already persisted notification to one recipient over
// a single channel.
type Notifier interface {
	Notify(ctx context.Context, recipient models.User, notification models.Notification) error
}

func logNotifyError(logger zerolog.Logger, err error, channel string, notif models.Notification) {
	if err == nil {
		return
	}
	logger.Warn().
		Err(err).
		Str("notification_id", notif.ID).
		Str("user_id", notif.UserID).
		Str("envelope_id", notif.EnvelopeID).
		Str("channel", channel).
		Msg("failed to deliver notification")
}

func notifierChannelName(n Notifier) string {
	type named interface {
		String() string
	}
	if v, ok := n.(named); ok {
		return v.String()
	}
	return fmt.Sprintf("%T", n)
}

func sanitizeRecipients(recipients []string) []string {
	var cleaned []string
	for _, recipient := range recipients {
		if trimmed := strings.TrimSpace(recipient); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
