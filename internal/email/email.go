// Package email delivers account mails (password reset links).
package email

import (
	"context"
	"log/slog"

	"account_gateway/platform/config"
	"account_gateway/platform/logger"
)

// Sender delivers account emails.
type Sender interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error
}

// LogSender writes mails to the log instead of sending them. Used when SMTP is
// not configured.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) SendPasswordResetEmail(ctx context.Context, toEmail, resetURL string) error {
	s.log.WithContext(ctx).Info("password reset email (not sent, smtp disabled)",
		slog.String("to", toEmail),
		slog.String("reset_url", resetURL),
	)
	return nil
}

// NewSender returns an SMTP sender when email is enabled, otherwise a LogSender.
func NewSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	if !cfg.GetEmailEnabled() {
		return NewLogSender(log)
	}
	return NewSMTPSender(
		cfg.GetSMTPHost(),
		cfg.GetSMTPPort(),
		cfg.GetSMTPUsername(),
		cfg.GetSMTPPassword(),
		cfg.GetEmailFromAddress(),
		cfg.GetEmailFromName(),
	)
}
