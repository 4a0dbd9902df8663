package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/adapter"
	"quiz-payment-relay/internal/domain/ports/repository"
	"quiz-payment-relay/internal/infra/logging"
	"quiz-payment-relay/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// DeliveryDeduper marks gateway transaction ids on first sight so retried
// deliveries can be short-circuited. Advisory only: the grant upsert and the
// guarded session transition remain the source of truth for idempotency.
//
// A claimed marker must be released whenever the delivery does not reach a
// durable outcome, otherwise a gateway retry of a failed delivery would be
// short-circuited and the payment lost.
type DeliveryDeduper interface {
	FirstDelivery(ctx context.Context, transactionID string) (bool, error)
	Release(ctx context.Context, transactionID string) error
}

type ReconcileUseCase interface {
	// Process runs an inbound webhook through normalize -> classify ->
	// match -> finalize. A nil error with Processed=false means the payload
	// was well-formed but no session corresponds to it; the gateway must
	// not retry it.
	Process(ctx context.Context, body []byte) (*ReconcileResult, error)
}

type ReconcileResult struct {
	Processed      bool             `json:"processed"`
	Ignored        bool             `json:"-"`
	Duplicate      bool             `json:"-"`
	Message        string           `json:"message"`
	MatchingMethod string           `json:"matchingMethod,omitempty"`
	Data           *Finalization    `json:"data,omitempty"`
	RecentSessions []SessionSnapshot `json:"recentSessions,omitempty"`
}

// Finalization reports what the reconciler settled.
type Finalization struct {
	SessionID          string           `json:"sessionId"`
	UserID             string           `json:"userId"`
	CategoryID         string           `json:"categoryId"`
	TransactionID      string           `json:"transactionId"`
	AccessType         model.AccessType `json:"accessType"`
	OriginalAmount     int64            `json:"originalAmount"`
	ActualAmount       int64            `json:"actualAmount"`
	Discount           int64            `json:"discount"`
	DiscountPercentage int              `json:"discountPercentage"`
	CouponUsed         string           `json:"couponUsed,omitempty"`
	ProcessedAt        time.Time        `json:"processedAt"`
}

// SessionSnapshot is the debug view of recent sessions attached to an
// unmatched response, to support manual reconciliation by operators.
type SessionSnapshot struct {
	SessionID      string              `json:"sessionId"`
	ExpectedAmount int64               `json:"expectedAmount"`
	Status         model.SessionStatus `json:"status"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// errAlreadySettled aborts the finalization transaction when another
// delivery completed the session first.
var errAlreadySettled = errors.New("session already settled")

type reconcileUC struct {
	sessions   repository.SessionRepository
	transacts  repository.TransactionRepository
	sessionUC  SessionUseCase
	matcher    *Matcher
	classifier *Classifier
	tm         repository.TransactionManager
	deduper    DeliveryDeduper  // optional
	notifier   adapter.Notifier // optional
	gateway    string
	log        *zerolog.Logger
}

func NewReconcileUseCase(
	sessions repository.SessionRepository,
	transacts repository.TransactionRepository,
	sessionUC SessionUseCase,
	matcher *Matcher,
	classifier *Classifier,
	tm repository.TransactionManager,
	deduper DeliveryDeduper,
	notifier adapter.Notifier,
	gateway string,
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		sessions:   sessions,
		transacts:  transacts,
		sessionUC:  sessionUC,
		matcher:    matcher,
		classifier: classifier,
		tm:         tm,
		deduper:    deduper,
		notifier:   notifier,
		gateway:    gateway,
		log:        &l,
	}
}

func (u *reconcileUC) Process(ctx context.Context, body []byte) (*ReconcileResult, error) {
	ev, err := NormalizeWebhook(body)
	if err != nil {
		return nil, err
	}

	if ev.Event != model.EventPaymentReceived {
		u.log.Info().Str("event", ev.Event).Msg("webhook ignored: wrong event type")
		return &ReconcileResult{
			Ignored: true,
			Message: "webhook ignored: not a payment.received event",
		}, nil
	}

	sc := u.classifier.Classify(ev)
	if !sc.Successful {
		u.log.Info().
			Str("status", ev.Status).
			Str("transaction_status", ev.TransactionStatus).
			Msg("webhook ignored: payment not successful")
		return &ReconcileResult{
			Ignored: true,
			Message: "webhook ignored: payment not successful",
		}, nil
	}

	if ev.CustomerEmail != "" {
		ctx = logging.WithEmail(ctx, logging.Redact(ev.CustomerEmail))
	}
	log := logging.With(ctx, u.log)

	// The marker is claimed up front so concurrent retries short-circuit
	// early, but it must not outlive a delivery that failed or went
	// unprocessed: the gateway's retry of that delivery has to run the
	// full chain again.
	claimed := false
	if u.deduper != nil && ev.TransactionID != "" {
		first, err := u.deduper.FirstDelivery(ctx, ev.TransactionID)
		if err != nil {
			// Dedup is best-effort; storage idempotency covers the rest.
			log.Warn().Err(err).Msg("delivery dedup unavailable")
		} else if !first {
			log.Info().Str("transaction_id", ev.TransactionID).Msg("duplicate delivery ignored")
			return &ReconcileResult{
				Processed: true,
				Duplicate: true,
				Message:   "duplicate delivery: already processed",
			}, nil
		} else {
			claimed = true
		}
	}

	session, method, err := u.matcher.Match(ctx, ev, sc)
	if err != nil {
		u.releaseClaim(ctx, claimed, ev.TransactionID)
		return nil, fmt.Errorf("match session: %w", err)
	}
	if session == nil {
		// An operator replaying this payload after creating the missing
		// session must not be answered with "duplicate".
		u.releaseClaim(ctx, claimed, ev.TransactionID)
		snapshot, snapErr := u.recentSessions(ctx, ev.CustomerEmail)
		if snapErr != nil {
			log.Warn().Err(snapErr).Msg("failed to collect debug sessions")
		}
		log.Warn().
			Int64("amount", ev.Amount).
			Str("coupon", ev.CouponUsed).
			Int("recent_sessions", len(snapshot)).
			Msg("no matching payment session")
		return &ReconcileResult{
			Processed:      false,
			Message:        "no matching payment session found",
			RecentSessions: snapshot,
		}, nil
	}

	ctx = logging.WithSessID(ctx, session.SessionID)
	fin, err := u.finalize(ctx, session, ev, method)
	if err != nil {
		if errors.Is(err, errAlreadySettled) {
			// Genuinely settled; the marker stays.
			return &ReconcileResult{
				Processed: true,
				Duplicate: true,
				Message:   "session already completed",
			}, nil
		}
		u.releaseClaim(ctx, claimed, ev.TransactionID)
		return nil, err
	}

	return &ReconcileResult{
		Processed:      true,
		Message:        "success",
		MatchingMethod: method,
		Data:           fin,
	}, nil
}

// releaseClaim rolls the delivery marker back so the gateway's retry is not
// short-circuited. Best-effort: a leftover marker only suppresses retries
// until its TTL lapses, and the operator log line points at it.
func (u *reconcileUC) releaseClaim(ctx context.Context, claimed bool, transactionID string) {
	if !claimed {
		return
	}
	if err := u.deduper.Release(ctx, transactionID); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).
			Str("transaction_id", transactionID).
			Msg("failed to release delivery marker")
	}
}

// finalize grants access, completes the session, and appends the ledger row.
// Failing to grant is fatal so the gateway retries; once the grant is down,
// session/ledger failures are logged but must not block the gateway from
// considering the webhook delivered.
func (u *reconcileUC) finalize(ctx context.Context, s *model.PaymentSession, ev *model.CanonicalEvent, method string) (*Finalization, error) {
	log := logging.With(ctx, u.log)

	// A fully discounted paid item is still a paid grant; only genuinely
	// free categories (expected amount zero) get a free one.
	accessType := model.AccessTypePaid
	if s.ExpectedAmount == 0 {
		accessType = model.AccessTypeFree
	}

	if err := u.sessionUC.GrantAccess(ctx, repository.NoTX, s.UserID, s.CategoryID, accessType); err != nil {
		return nil, fmt.Errorf("grant access: %w", err)
	}

	now := time.Now()
	rec := &model.TransactionRecord{
		ID:                   ulid.Make().String(),
		SessionID:            s.SessionID,
		UserID:               s.UserID,
		CategoryID:           s.CategoryID,
		Gateway:              u.gateway,
		GatewayTransactionID: ev.TransactionID,
		WebhookID:            ev.WebhookID,
		ExpectedAmount:       s.ExpectedAmount,
		ActualAmount:         ev.Amount,
		CouponUsed:           ev.CouponUsed,
		MatchingMethod:       method,
		RawPayload:           ev.Raw,
		CreatedAt:            now,
	}
	rec.ComputeDiscount()

	completion := repository.SessionCompletion{
		ProcessedAt:    now,
		TransactionID:  ev.TransactionID,
		ActualAmount:   ev.Amount,
		MatchingMethod: method,
		CouponUsed:     ev.CouponUsed,
	}

	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.sessions.CompleteIf(ctx, tx, s.SessionID, pendingOrExpired, completion)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadySettled
		}
		return u.transacts.Insert(ctx, tx, rec)
	})
	if errors.Is(err, errAlreadySettled) {
		// Another delivery won; the grant upsert above was a no-op.
		return nil, errAlreadySettled
	}
	if err != nil {
		// Access is already granted; retrying the whole webhook would only
		// re-run the idempotent grant, so do not fail the response.
		log.Error().Err(err).
			Str("transaction_id", ev.TransactionID).
			Msg("session completion or ledger append failed after grant")
	} else {
		metrics.AddRevenue(ev.Amount)
	}

	log.Info().
		Str("transaction_id", ev.TransactionID).
		Str("matching_method", method).
		Str("access_type", string(accessType)).
		Int64("expected_amount", s.ExpectedAmount).
		Int64("actual_amount", ev.Amount).
		Msg("payment reconciled")

	u.notify(s, ev, rec)

	return &Finalization{
		SessionID:          s.SessionID,
		UserID:             s.UserID,
		CategoryID:         s.CategoryID,
		TransactionID:      ev.TransactionID,
		AccessType:         accessType,
		OriginalAmount:     rec.ExpectedAmount,
		ActualAmount:       rec.ActualAmount,
		Discount:           rec.Discount,
		DiscountPercentage: rec.DiscountPercentage,
		CouponUsed:         rec.CouponUsed,
		ProcessedAt:        now,
	}, nil
}

func (u *reconcileUC) recentSessions(ctx context.Context, email string) ([]SessionSnapshot, error) {
	if email == "" {
		return nil, nil
	}
	recent, err := u.sessions.FindRecentByEmail(ctx, repository.NoTX, email, nil, time.Time{}, 3)
	if err != nil {
		return nil, err
	}
	out := make([]SessionSnapshot, 0, len(recent))
	for _, s := range recent {
		out = append(out, SessionSnapshot{
			SessionID:      s.SessionID,
			ExpectedAmount: s.ExpectedAmount,
			Status:         s.Status,
			CreatedAt:      s.CreatedAt,
		})
	}
	return out, nil
}

// notify fires the best-effort confirmation without blocking the response.
func (u *reconcileUC) notify(s *model.PaymentSession, ev *model.CanonicalEvent, rec *model.TransactionRecord) {
	if u.notifier == nil || ev.CustomerEmail == "" {
		return
	}
	notice := adapter.PaymentNotice{
		CustomerEmail:  ev.CustomerEmail,
		CustomerName:   ev.CustomerName,
		CategoryName:   ev.ProductName,
		SessionID:      s.SessionID,
		TransactionID:  ev.TransactionID,
		ExpectedAmount: rec.ExpectedAmount,
		ActualAmount:   rec.ActualAmount,
		CouponUsed:     rec.CouponUsed,
	}
	log := u.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := u.notifier.PaymentConfirmed(ctx, notice); err != nil {
			log.Warn().Err(err).Str("session_id", notice.SessionID).Msg("payment notification failed")
		}
	}()
}
