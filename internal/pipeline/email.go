package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calliope-press/pipeline/internal/mailer"
	"github.com/calliope-press/pipeline/internal/platform/logger"
	"github.com/calliope-press/pipeline/internal/queue"
)

// EmailHandler delivers queued notification emails through the Mailer
// collaborator. Delivery failures are returned as-is so the broker retries
// with backoff.
type EmailHandler struct {
	mailer mailer.Mailer
	logger *slog.Logger
}

// NewEmailHandler creates an EmailHandler.
// Returns an error if any required dependency is nil.
func NewEmailHandler(m mailer.Mailer, log *slog.Logger) (*EmailHandler, error) {
	if m == nil {
		return nil, errors.New("mailer cannot be nil")
	}
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &EmailHandler{
		mailer: m,
		logger: log.With(slog.String("component", "email_handler")),
	}, nil
}

// Handle implements queue.Handler for the email queue.
func (h *EmailHandler) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := queue.DecodeEmail(job)
	if err != nil {
		return err
	}

	log := logger.FromContextOrDefault(ctx, h.logger).With(
		slog.String("to", payload.To),
	)

	if err := h.mailer.Send(ctx, mailer.Message{
		To:      payload.To,
		Subject: payload.Subject,
		Text:    payload.Text,
		HTML:    payload.HTML,
	}); err != nil {
		log.Error("email delivery failed",
			slog.String("error", err.Error()))
		return fmt.Errorf("email delivery failed: %w", err)
	}

	log.Info("email delivered", slog.String("subject", payload.Subject))
	return nil
}
