package model

import "time"

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"   // awaiting payment at the gateway
	SessionStatusCompleted SessionStatus = "completed" // payment reconciled, access granted
	SessionStatusExpired   SessionStatus = "expired"   // validity window passed without payment
)

// PaymentSession is a time-boxed record of purchase intent linking a user,
// a quiz category, and the amount we expect the gateway to settle.
// The gateway does not propagate SessionID back to us, so UserEmail is the
// primary correlation key at reconciliation time.
type PaymentSession struct {
	SessionID      string // UUID, generated at creation
	UserID         string
	CategoryID     string
	UserEmail      string
	ExpectedAmount int64 // currency minor units; zero for free categories
	Status         SessionStatus
	CreatedAt      time.Time
	ExpiresAt      time.Time

	// Populated only on completion.
	ProcessedAt    *time.Time
	TransactionID  *string
	ActualAmount   *int64
	MatchingMethod *string
	CouponUsed     *string
}

// ExpiredAt reports whether the session's validity window has passed.
// Expiry is a derived property; the stored status catches up lazily on the
// next read or match.
func (s *PaymentSession) ExpiredAt(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Matchable reports whether the session is still a candidate for webhook
// reconciliation under the given set of statuses.
func (s *PaymentSession) Matchable(statuses []SessionStatus) bool {
	for _, st := range statuses {
		if s.Status == st {
			return true
		}
	}
	return false
}
