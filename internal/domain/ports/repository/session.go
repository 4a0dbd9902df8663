package repository

import (
	"context"
	"time"

	"quiz-payment-relay/internal/domain/model"
)

// SessionCompletion carries the fields stamped onto a session when it
// transitions to completed.
type SessionCompletion struct {
	ProcessedAt    time.Time
	TransactionID  string
	ActualAmount   int64
	MatchingMethod string
	CouponUsed     string
}

type SessionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.PaymentSession) error
	FindByID(ctx context.Context, tx Tx, sessionID string) (*model.PaymentSession, error)

	// FindRecentByEmail returns sessions for the email whose status is in
	// `statuses` and whose created_at >= since, most recent first. A zero
	// `since` disables the window.
	FindRecentByEmail(ctx context.Context, tx Tx, email string, statuses []model.SessionStatus, since time.Time, limit int) ([]*model.PaymentSession, error)

	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.PaymentSession, error)

	// UpdateStatusIf atomically transitions status from `from` to `to`.
	// Returns false when the session was no longer in `from`.
	UpdateStatusIf(ctx context.Context, tx Tx, sessionID string, from, to model.SessionStatus) (bool, error)

	// CompleteIf atomically transitions the session to completed, stamping
	// the completion fields, but only while its status is one of `from`.
	// Returns false when another finalization won the race.
	CompleteIf(ctx context.Context, tx Tx, sessionID string, from []model.SessionStatus, c SessionCompletion) (bool, error)

	// ExpireOlderThan bulk-transitions pending sessions whose expires_at has
	// passed. Returns the number of sessions reclassified.
	ExpireOlderThan(ctx context.Context, tx Tx, now time.Time) (int, error)
}
