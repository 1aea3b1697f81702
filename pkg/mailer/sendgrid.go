package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/noah-isme/uni-enrollment-api/pkg/config"
)

type sendGridClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridMailer sends mail through the SendGrid v3 API.
type SendGridMailer struct {
	client sendGridClient
	from   *mail.Email
}

// NewSendGridMailer builds a SendGrid-backed mailer.
func NewSendGridMailer(cfg config.MailConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
	}
}

// Send delivers msg. Any non-2xx API response is an error.
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	to := mail.NewEmail(msg.ToName, msg.ToAddress)
	resp, err := m.client.SendWithContext(ctx, mail.NewSingleEmail(m.from, msg.Subject, to, msg.Body, ""))
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", msg.ToAddress, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send to %s: status %d: %s", msg.ToAddress, resp.StatusCode, resp.Body)
	}
	return nil
}
