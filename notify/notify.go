package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS - Outcome alerts to the operator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Delivery is best effort. A failed alert is logged and never retried, and it
// never fails the trading flow that raised it.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Notifier delivers one message
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Send delivers through n and logs any failure
func Send(ctx context.Context, n Notifier, subject, body string) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, subject, body); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("Failed to send notification")
	}
}

// Nop drops every message
type Nop struct{}

func (Nop) Notify(ctx context.Context, subject, body string) error { return nil }

// Multi fans a message out to several notifiers
type Multi []Notifier

// Notify delivers to every notifier even if some fail
func (m Multi) Notify(ctx context.Context, subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
