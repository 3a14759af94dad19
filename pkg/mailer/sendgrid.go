package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultSendGridHost = "https://api.sendgrid.com"

// SendGridMailer delivers mail through the SendGrid v3 API.
type SendGridMailer struct {
	apiKey    string
	host      string
	fromEmail string
	fromName  string
}

// NewSendGridMailer constructs a SendGrid-backed mailer.
func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
	return &SendGridMailer{apiKey: apiKey, host: defaultSendGridHost, fromEmail: fromEmail, fromName: fromName}
}

// WithHost points the mailer at another API host.
func (m *SendGridMailer) WithHost(host string) *SendGridMailer {
	clone := *m
	clone.host = host
	return &clone
}

// Send implements Mailer.
func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	if msg.ToAddress == "" {
		return ErrNoRecipient
	}

	from := mail.NewEmail(m.fromName, m.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToAddress)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)

	request := sendgrid.GetRequest(m.apiKey, "/v3/mail/send", m.host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}
