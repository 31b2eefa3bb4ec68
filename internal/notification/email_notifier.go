package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stanstork/medequip-events/internal/models"
)

// EmailNotifier is the mail channel.
type EmailNotifier struct {
	mailer Mailer
	logger zerolog.Logger
}

func NewEmailNotifier(mailer Mailer, logger zerolog.Logger) *EmailNotifier {
	return &EmailNotifier{
		mailer: mailer,
		logger: logger.With().Str("notifier", "email").Logger(),
	}
}

func (n *EmailNotifier) Notify(_ context.Context, recipient models.User, notif models.Notification) error {
	if strings.TrimSpace(recipient.Email) == "" {
		return nil
	}

	subject := fmt.Sprintf("[MedEquip] %s", strings.TrimSpace(notif.Title))
	if subject == "[MedEquip] " {
		subject = "[MedEquip] Notification"
	}
	if notif.Priority == "critical" {
		subject = "[MedEquip][CRITICAL] " + strings.TrimPrefix(subject, "[MedEquip] ")
	}

	body := strings.Builder{}
	if recipient.Name != "" {
		body.WriteString(fmt.Sprintf("Hello %s,\n\n", recipient.Name))
	}
	body.WriteString(strings.TrimSpace(notif.Message))
	body.WriteString("\n\n")
	body.WriteString(fmt.Sprintf("Category: %s\n", notif.Category))
	body.WriteString(fmt.Sprintf("Action: %s\n", notif.Action))
	body.WriteString(fmt.Sprintf("Priority: %s\n", notif.Priority))
	body.WriteString(fmt.Sprintf("Created: %s\n", notif.CreatedAt.Format("2006-01-02 15:04:05 MST")))

	if err := n.mailer.Send([]string{recipient.Email}, subject, body.String()); err != nil {
		return err
	}

	n.logger.Info().
		Str("notification_id", notif.ID).
		Str("user_id", recipient.ID).
		Msg("email notification sent")
	return nil
}

func (n *EmailNotifier) String() string {
	return "mail"
}
