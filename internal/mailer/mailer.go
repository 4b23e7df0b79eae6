// Package mailer provides the outbound email boundary used by the email
// worker.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/calliope-press/pipeline/internal/config"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer defines the interface for sending email.
type Mailer interface {
	// Send delivers one message. Errors are transient from the pipeline's
	// point of view; the broker's retry policy applies.
	Send(ctx context.Context, msg Message) error
}

// ErrNotConfigured is returned when no SMTP host is configured.
var ErrNotConfigured = errors.New("mailer is not configured")

// SMTPMailer sends mail through a plain SMTP relay.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

// Ensure SMTPMailer implements the Mailer interface
var _ Mailer = (*SMTPMailer)(nil)

// NewSMTPMailer creates an SMTPMailer from configuration.
func NewSMTPMailer(cfg config.SMTPConfig, logger *slog.Logger) *SMTPMailer {
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "smtp_mailer")),
	}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.cfg.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString("From: " + m.cfg.From + "\r\n")
	body.WriteString("To: " + msg.To + "\r\n")
	body.WriteString("Subject: " + msg.Subject + "\r\n")
	if msg.HTML != "" {
		body.WriteString("MIME-Version: 1.0\r\n")
		body.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		body.WriteString(msg.HTML)
	} else {
		body.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		body.WriteString(msg.Text)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, []byte(body.String())); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}

	m.logger.InfoContext(ctx, "email sent", "to", msg.To, "subject", msg.Subject)
	return nil
}
