package adapter

import "context"

// PaymentNotice describes a finalized payment for outbound notification.
type PaymentNotice struct {
	CustomerEmail  string
	CustomerName   string
	CategoryName   string
	SessionID      string
	TransactionID  string
	ExpectedAmount int64
	ActualAmount   int64
	CouponUsed     string
}

// Notifier delivers a best-effort confirmation to the customer after a
// payment is reconciled. Failures must never fail the webhook response.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, notice PaymentNotice) error
}
