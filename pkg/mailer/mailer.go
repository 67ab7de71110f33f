package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/aprendesoft/colegio-api/pkg/config"
)

// Mailer sends a plain-text message to one recipient.
type Mailer interface {
	Send(ctx context.Context, toName, toAddress, subject, body string) error
}

// SendGridMailer delivers mail through the SendGrid API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

// NewSendGridMailer constructs a SendGrid-backed mailer.
func NewSendGridMailer(cfg config.MailConfig) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(cfg.SendGridKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromAddress),
	}
}

// Send delivers the message, returning an error on non-2xx responses.
func (m *SendGridMailer) Send(_ context.Context, toName, toAddress, subject, body string) error {
	to := mail.NewEmail(toName, toAddress)
	msg := mail.NewSingleEmail(m.from, subject, to, body, body)
	resp, err := m.client.Send(msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d", resp.StatusCode)
	}
	return nil
}

// NoopMailer is used when the relay is disabled; it logs and discards.
type NoopMailer struct {
	Logger *zap.Logger
}

// Send discards the message.
func (m *NoopMailer) Send(_ context.Context, _, toAddress, subject, _ string) error {
	if m.Logger != nil {
		m.Logger.Sugar().Debugw("mail relay disabled, discarding message", "to", toAddress, "subject", subject)
	}
	return nil
}
