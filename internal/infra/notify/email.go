package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog"

	"quiz-payment-relay/internal/config"
	"quiz-payment-relay/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*EmailNotifier)(nil)

// EmailNotifier sends a plain-text payment confirmation over SMTP.
type EmailNotifier struct {
	addr string
	auth smtp.Auth
	from string
	log  *zerolog.Logger
}

func NewEmailNotifier(cfg config.NotifyConfig, logger *zerolog.Logger) *EmailNotifier {
	host := cfg.SMTPHost
	if host == "" {
		host = cfg.SMTPAddr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	l := logger.With().Str("component", "EmailNotifier").Logger()
	return &EmailNotifier{addr: cfg.SMTPAddr, auth: auth, from: cfg.From, log: &l}
}

func (n *EmailNotifier) PaymentConfirmed(ctx context.Context, notice adapter.PaymentNotice) error {
	e := email.NewEmail()
	e.From = n.from
	e.To = []string{notice.CustomerEmail}
	e.Subject = "Payment confirmed"
	e.Text = []byte(n.body(notice))

	// jordan-wright/email has no context-aware send; honor cancellation
	// before dialing at least.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.Send(n.addr, n.auth); err != nil {
		return fmt.Errorf("send confirmation email: %w", err)
	}
	n.log.Info().Str("session_id", notice.SessionID).Msg("confirmation email sent")
	return nil
}

func (n *EmailNotifier) body(notice adapter.PaymentNotice) string {
	var b strings.Builder
	name := notice.CustomerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	fmt.Fprintf(&b, "Your payment has been confirmed and access to %q is now active.\n\n", notice.CategoryName)
	fmt.Fprintf(&b, "Amount: %d\n", notice.ActualAmount)
	if notice.CouponUsed != "" {
		fmt.Fprintf(&b, "Coupon: %s\n", notice.CouponUsed)
	}
	fmt.Fprintf(&b, "Reference: %s\n", notice.TransactionID)
	b.WriteString("\nHappy quizzing!\n")
	return b.String()
}
