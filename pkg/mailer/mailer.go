package mailer

import (
	"context"
	"errors"
)

// ErrNoRecipient is returned when a message has no destination address.
var ErrNoRecipient = errors.New("mail message has no recipient")

// Message is a single outbound email.
type Message struct {
	ToAddress string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
