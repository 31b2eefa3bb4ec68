package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/stanstork/medequip-events/internal/config"
)

// Mailer sends a plain text message.
type Mailer interface {
	Send(to []string, subject, body string) error
}

// SMTPMailer sends mail using an SMTP server.
type SMTPMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewSMTPMailer constructs a new SMTPMailer from config.
func NewSMTPMailer(cfg config.EmailConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, fmt.Errorf("smtp_host is required")
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	return &SMTPMailer{
		host:     strings.TrimSpace(cfg.SMTPHost),
		port:     cfg.SMTPPort,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
		from:     strings.TrimSpace(cfg.From),
	}, nil
}

func (m *SMTPMailer) Send(to []string, subject, body string) error {
	to = sanitizeRecipients(to)
	if len(to) == 0 {
		return nil
	}
	headers := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n",
		m.from, strings.Join(to, ","), subject)

	message := []byte(headers + body)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, to, message)
}
