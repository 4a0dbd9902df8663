package model

import (
	"encoding/json"
	"time"
)

// TransactionRecord is one row of the append-only reconciliation ledger.
// It captures what the gateway settled against what the session expected,
// for auditing and dispute resolution. Never mutated after insert.
type TransactionRecord struct {
	ID                   string // ULID, lexically sortable
	SessionID            string
	UserID               string
	CategoryID           string
	Gateway              string // e.g. "mayar"
	GatewayTransactionID string
	WebhookID            string
	ExpectedAmount       int64
	ActualAmount         int64
	Discount             int64
	DiscountPercentage   int
	CouponUsed           string
	MatchingMethod       string
	RawPayload           json.RawMessage
	CreatedAt            time.Time
}

// ComputeDiscount fills Discount and DiscountPercentage from the expected
// and actual amounts. A fully discounted paid item yields 100.
func (t *TransactionRecord) ComputeDiscount() {
	t.Discount = t.ExpectedAmount - t.ActualAmount
	if t.Discount < 0 {
		t.Discount = 0
	}
	if t.ExpectedAmount > 0 {
		t.DiscountPercentage = int(t.Discount * 100 / t.ExpectedAmount)
	}
}
