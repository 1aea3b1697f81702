package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/noah-isme/uni-enrollment-api/pkg/config"
)

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer relays mail through an SMTP server.
type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	fromName string
	fromAddr string
	send     sendMailFunc
}

// NewSMTPMailer builds an SMTP mailer. PLAIN auth is used when a username is configured.
func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &SMTPMailer{
		addr:     cfg.SMTPHost + ":" + strconv.Itoa(cfg.SMTPPort),
		auth:     auth,
		fromName: cfg.FromName,
		fromAddr: cfg.FromAddress,
		send:     smtp.SendMail,
	}
}

// Send delivers msg. smtp.SendMail has no context support, so ctx is only
// checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.send(m.addr, m.auth, m.fromAddr, []string{msg.ToAddress}, m.compose(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.ToAddress, err)
	}
	return nil
}

func (m *SMTPMailer) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s <%s>\r\n", m.fromName, m.fromAddr)
	if msg.ToName != "" {
		fmt.Fprintf(&b, "To: %s <%s>\r\n", msg.ToName, msg.ToAddress)
	} else {
		fmt.Fprintf(&b, "To: %s\r\n", msg.ToAddress)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}
