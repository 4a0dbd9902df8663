package model

import "encoding/json"

// Gateway payload tokens observed across both historical dialects.
const (
	EventPaymentReceived = "payment.received"
	StatusSuccessToken   = "SUCCESS"
	StatusPaidToken      = "paid"
)

// CanonicalEvent is the normalized shape of an inbound gateway webhook.
// The two historical payload dialects (transactionId vs bare id, status vs
// transactionStatus) are folded into one struct; missing optional fields are
// defaulted, not errors.
type CanonicalEvent struct {
	Event             string
	TransactionID     string // transactionId, falling back to id
	WebhookID         string // id, falling back to transactionId
	Status            string
	TransactionStatus string
	Amount            int64 // coerced; absent or unparseable settles to 0
	CustomerEmail     string
	CustomerName      string
	CouponUsed        string
	ProductID         string
	ProductName       string
	PaymentMethod     string
	Raw               json.RawMessage // original body, kept for the ledger
}

// Successful reports whether the gateway considers the payment settled.
func (e *CanonicalEvent) Successful() bool {
	return e.Status == StatusSuccessToken ||
		e.Status == StatusPaidToken ||
		e.TransactionStatus == StatusPaidToken
}
