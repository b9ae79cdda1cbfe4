package smtp

import (
	"context"
	"fmt"

	"github.com/go-shop-api/internal/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends plain-text emails through an SMTP relay.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(cfg *config.Config) *Mailer {
	return &Mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

// SendEmail dials per message. gomail has no context support, so ctx is only
// checked before dialing.
func (m *Mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
