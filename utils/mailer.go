package utils

import (
	"context"
	"crypto/tls"
	"fmt"

	"nurtura/config"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// Mailer delivers rendered emails over SMTP. It implements the engine's
// delivery channel contract: one Send per step, returning a receipt id.
type Mailer struct {
	cfg config.SMTPConfig
}

func NewMailer(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send dials SMTP and delivers one HTML email. The generated message id is
// returned as the provider receipt; classification of errors is the
// caller's concern.
func (m *Mailer) Send(ctx context.Context, to, subject, htmlBody string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := fmt.Sprintf("<%s@nurtura>", uuid.New().String())

	msg := gomail.NewMessage()
	msg.SetHeader("From", fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From))
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: m.cfg.Host}

	if err := d.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("error sending email: %w", err)
	}
	return messageID, nil
}
