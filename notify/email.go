package notify

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/mattetom/crypto/internal/config"
)

// Email sends plain-text mail through an authenticated SMTP submission server
type Email struct {
	from string
	to   []string
	send func(m ...*gomail.Message) error
}

// NewEmail creates an SMTP notifier. EMAIL_TO may hold several comma-separated
// recipients.
func NewEmail(cfg *config.Config) *Email {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailFrom, cfg.EmailPassword)

	var to []string
	for _, addr := range strings.Split(cfg.EmailTo, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}

	log.Info().Str("host", cfg.SMTPHost).Int("recipients", len(to)).Msg("📧 Email notifications enabled")
	return &Email{from: cfg.EmailFrom, to: to, send: dialer.DialAndSend}
}

func (e *Email) Notify(ctx context.Context, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", e.to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := e.send(m); err != nil {
		return err
	}
	log.Info().Str("subject", subject).Msg("📧 Email sent")
	return nil
}
