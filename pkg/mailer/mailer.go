// Package mailer delivers plain-text notification mail through a pluggable transport.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-enrollment-api/pkg/config"
)

// Message is a single outbound plain-text mail.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	Body      string
}

// Mailer sends a message or reports why it could not.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New selects the transport named by cfg.Driver.
func New(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(cfg.Driver) {
	case "", config.MailDriverLog:
		return NewLogMailer(logger), nil
	case config.MailDriverSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("smtp mailer requires SMTP_HOST")
		}
		return NewSMTPMailer(cfg), nil
	case config.MailDriverSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("sendgrid mailer requires SENDGRID_API_KEY")
		}
		return NewSendGridMailer(cfg), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// LogMailer writes mail to the structured log instead of sending it.
type LogMailer struct {
	logger *zap.Logger
}

// NewLogMailer builds a mailer for development environments.
func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send logs the message.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("mail",
		zap.String("to", msg.ToAddress),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return nil
}
