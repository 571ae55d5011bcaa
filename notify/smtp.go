package notify

import (
	"context"
	"fmt"
	"net/smtp"
)

// SMTPConfig holds the connection settings for an SMTP relay. Username may
// be empty for relays that accept unauthenticated submission.
type SMTPConfig struct {
	Host     string
	Port     string
	From     string
	Username string
	Password string
}

// SMTPNotifier delivers messages through a plain SMTP relay.
type SMTPNotifier struct {
	config SMTPConfig
}

// NewSMTPNotifier creates an [SMTPNotifier] for the given relay.
func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{config: cfg}
}

func (n *SMTPNotifier) Name() string { return "smtp" }

// Send submits the message to the relay. net/smtp has no context support,
// so the submission runs in a goroutine and the caller's deadline is
// honored by abandoning the wait; the dial itself may outlive ctx.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	raw := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.config.From, msg.To, msg.Subject, msg.Body,
	)
	addr := n.config.Host + ":" + n.config.Port

	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, n.config.From, []string{msg.To}, []byte(raw))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
