package delivery

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// MailDialer abstracts gomail so tests can stub the SMTP hop.
type MailDialer interface {
	DialAndSend(messages ...*gomail.Message) error
}

// EmailChannel sends notifications over SMTP.
type EmailChannel struct {
	dialer   MailDialer
	fromAddr string
	fromName string
}

// NewEmailChannel constructs an email channel. The dialer usually
// comes from gomail.NewDialer(host, port, user, password).
func NewEmailChannel(dialer MailDialer, fromAddr, fromName string) (*EmailChannel, error) {
	if dialer == nil {
		return nil, errors.New("email channel: nil dialer")
	}
	if fromAddr == "" {
		fromAddr = "noreply@localhost"
	}
	if fromName == "" {
		fromName = "Notifications"
	}
	return &EmailChannel{dialer: dialer, fromAddr: fromAddr, fromName: fromName}, nil
}

// Name implements Channel.
func (e *EmailChannel) Name() string { return "email" }

// Send implements Channel. SMTP dial has no context hook; the dialer's
// own timeout bounds the call, and a cancelled context short-circuits
// before dialing.
func (e *EmailChannel) Send(ctx context.Context, payload Payload) error {
	if payload.UserEmail == "" {
		return fmt.Errorf("email channel: no address for user %s", payload.UserID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", e.fromAddr, e.fromName)
	msg.SetHeader("To", payload.UserEmail)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", payload.Priority, payload.Title))
	msg.SetBody("text/plain", payload.Body)
	return e.dialer.DialAndSend(msg)
}
