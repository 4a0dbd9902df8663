package usecase

import (
	"encoding/json"
	"strconv"
	"strings"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
)

// webhookEnvelope mirrors the gateway's outer payload shape. Both historical
// dialects fit this struct; unknown fields are ignored.
type webhookEnvelope struct {
	Event string       `json:"event"`
	Data  *webhookData `json:"data"`
}

type webhookData struct {
	ID                string `json:"id"`
	TransactionID     string `json:"transactionId"`
	Status            string `json:"status"`
	TransactionStatus string `json:"transactionStatus"`
	Amount            any    `json:"amount"` // number in one dialect, numeric string in the other
	CustomerEmail     string `json:"customerEmail"`
	CustomerName      string `json:"customerName"`
	CouponUsed        string `json:"couponUsed"`
	ProductID         string `json:"productId"`
	ProductName       string `json:"productName"`
	PaymentMethod     string `json:"paymentMethod"`
}

// NormalizeWebhook parses a raw gateway payload into a CanonicalEvent.
// It fails with domain.ErrInvalidPayload only when the body is not JSON or
// when both `event` and `data` are absent; missing optional fields default.
func NormalizeWebhook(body []byte) (*model.CanonicalEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if env.Event == "" && env.Data == nil {
		return nil, domain.ErrInvalidPayload
	}
	d := env.Data
	if d == nil {
		d = &webhookData{}
	}

	txID := d.TransactionID
	if txID == "" {
		txID = d.ID
	}
	webhookID := d.ID
	if webhookID == "" {
		webhookID = d.TransactionID
	}

	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	return &model.CanonicalEvent{
		Event:             env.Event,
		TransactionID:     txID,
		WebhookID:         webhookID,
		Status:            d.Status,
		TransactionStatus: d.TransactionStatus,
		Amount:            coerceAmount(d.Amount),
		CustomerEmail:     strings.TrimSpace(d.CustomerEmail),
		CustomerName:      d.CustomerName,
		CouponUsed:        strings.TrimSpace(d.CouponUsed),
		ProductID:         d.ProductID,
		ProductName:       d.ProductName,
		PaymentMethod:     d.PaymentMethod,
		Raw:               raw,
	}, nil
}

// coerceAmount settles any representation the gateway has been seen to send
// (number, numeric string, absent) to minor units. Unparseable values settle
// to 0 rather than erroring; the amount field is advisory for matching.
func coerceAmount(v any) int64 {
	switch a := v.(type) {
	case float64:
		return int64(a)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return 0
		}
		return int64(f)
	case json.Number:
		f, err := a.Float64()
		if err != nil {
			return 0
		}
		return int64(f)
	default:
		return 0
	}
}

// PaymentScenario tags an event for strategy selection. The tags are
// diagnostic: they decide which matching strategies run, not which session
// ultimately wins.
type PaymentScenario struct {
	Successful bool
	ZeroAmount bool
	TestCoupon bool // a recognized test coupon code is present
	// CouponDiscount marks a zero settled amount without a recognized
	// free-trial coupon, i.e. a real discount applied at the gateway.
	CouponDiscount bool
	Normal         bool // positive amount, no coupon involved
}

// Classifier derives PaymentScenario tags from a CanonicalEvent. Recognized
// coupon codes are configuration data.
type Classifier struct {
	testCoupons map[string]struct{}
}

func NewClassifier(testCoupons []string) *Classifier {
	m := make(map[string]struct{}, len(testCoupons))
	for _, c := range testCoupons {
		m[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &Classifier{testCoupons: m}
}

func (c *Classifier) Classify(ev *model.CanonicalEvent) PaymentScenario {
	sc := PaymentScenario{Successful: ev.Successful()}
	_, recognized := c.testCoupons[strings.ToUpper(ev.CouponUsed)]
	sc.TestCoupon = ev.CouponUsed != "" && recognized
	sc.ZeroAmount = ev.Amount == 0
	sc.CouponDiscount = sc.ZeroAmount && !sc.TestCoupon
	sc.Normal = ev.Amount > 0 && ev.CouponUsed == ""
	return sc
}
