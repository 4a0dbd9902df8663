package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"quiz-payment-relay/internal/config"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/repository"
	"quiz-payment-relay/internal/infra/logging"
	"quiz-payment-relay/internal/infra/metrics"
)

// Matching method names, recorded on the session and the ledger.
const (
	MatchMethodExact      = "exact_amount"
	MatchMethodZeroAmount = "zero_amount_discount"
	MatchMethodTestCoupon = "test_coupon"
	MatchMethodFallback   = "recent_fallback"
)

var pendingOnly = []model.SessionStatus{model.SessionStatusPending}

var pendingOrExpired = []model.SessionStatus{
	model.SessionStatusPending,
	model.SessionStatusExpired,
}

// matchStrategy is one attempt in the ordered reconciliation chain. All the
// behavioral knobs are data so a strategy can be retuned without touching
// its siblings.
type matchStrategy struct {
	method      string
	applies     func(sc PaymentScenario) bool
	statuses    []model.SessionStatus
	window      time.Duration // 0 means the session's own validity window
	exactAmount bool          // require expectedAmount == event amount
	preferPaid  bool          // prefer candidates with expectedAmount > 0
}

// Matcher runs the prioritized strategy chain against stored sessions.
// First hit wins; exact match is always attempted first and is never skipped
// in favor of a looser strategy.
type Matcher struct {
	sessions repository.SessionRepository
	chain    []matchStrategy
	limit    int
	log      *zerolog.Logger
}

func NewMatcher(sessions repository.SessionRepository, cfg config.MatchingConfig, logger *zerolog.Logger) *Matcher {
	l := logger.With().Str("component", "Matcher").Logger()
	chain := []matchStrategy{
		{
			// Zero settles are excluded here: a 0==0 hit on a free session
			// would shadow the zero-amount strategy's paid-session
			// preference.
			method:      MatchMethodExact,
			applies:     func(sc PaymentScenario) bool { return !sc.ZeroAmount },
			statuses:    pendingOnly,
			exactAmount: true,
		},
		{
			// A real paid item fully discounted at the gateway settles at
			// zero; the amount field cannot be trusted, so fall back to the
			// most recent session for the email within an extended window.
			method:     MatchMethodZeroAmount,
			applies:    func(sc PaymentScenario) bool { return sc.ZeroAmount },
			statuses:   pendingOrExpired,
			window:     cfg.ZeroAmountWindow,
			preferPaid: true,
		},
		{
			method:   MatchMethodTestCoupon,
			applies:  func(sc PaymentScenario) bool { return sc.TestCoupon },
			statuses: pendingOrExpired,
			window:   cfg.CouponWindow,
		},
		{
			// Narrowest window: the least specific strategy gets the
			// smallest blast radius.
			method:   MatchMethodFallback,
			applies:  func(PaymentScenario) bool { return true },
			statuses: pendingOrExpired,
			window:   cfg.FallbackWindow,
		},
	}
	return &Matcher{sessions: sessions, chain: chain, limit: cfg.CandidateLimit, log: &l}
}

// Match returns the session the event corresponds to, plus the name of the
// strategy that found it. A (nil, "", nil) return means no strategy matched.
func (m *Matcher) Match(ctx context.Context, ev *model.CanonicalEvent, sc PaymentScenario) (*model.PaymentSession, string, error) {
	now := time.Now()
	for _, st := range m.chain {
		if !st.applies(sc) {
			continue
		}
		found, err := m.attempt(ctx, st, ev, now)
		if err != nil {
			return nil, "", err
		}
		metrics.IncMatchAttempt(st.method, found != nil)
		if found != nil {
			m.log.Info().
				Str("strategy", st.method).
				Str("session_id", found.SessionID).
				Int64("expected_amount", found.ExpectedAmount).
				Int64("event_amount", ev.Amount).
				Msg("session matched")
			return found, st.method, nil
		}
		m.log.Debug().
			Str("strategy", st.method).
			Str("email", logging.Redact(ev.CustomerEmail)).
			Int64("event_amount", ev.Amount).
			Msg("strategy found no session")
	}
	return nil, "", nil
}

func (m *Matcher) attempt(ctx context.Context, st matchStrategy, ev *model.CanonicalEvent, now time.Time) (*model.PaymentSession, error) {
	var since time.Time
	if st.window > 0 {
		since = now.Add(-st.window)
	}
	candidates, err := m.sessions.FindRecentByEmail(ctx, repository.NoTX, ev.CustomerEmail, st.statuses, since, m.limit)
	if err != nil {
		return nil, err
	}

	// Reclassify stale pending candidates before deciding. Expiry is
	// observed lazily during matching just as on reads.
	for _, s := range candidates {
		if s.Status == model.SessionStatusPending && s.ExpiredAt(now) {
			if _, err := m.sessions.UpdateStatusIf(ctx, repository.NoTX, s.SessionID,
				model.SessionStatusPending, model.SessionStatusExpired); err != nil {
				return nil, err
			}
			s.Status = model.SessionStatusExpired
			metrics.IncSessionsExpired(1)
		}
	}

	var fallback *model.PaymentSession
	for _, s := range candidates {
		if !s.Matchable(st.statuses) {
			continue
		}
		if st.exactAmount {
			if s.Status != model.SessionStatusPending || s.ExpectedAmount != ev.Amount {
				continue
			}
			return s, nil // candidates arrive most recent first
		}
		if st.preferPaid && s.ExpectedAmount <= 0 {
			if fallback == nil {
				fallback = s
			}
			continue
		}
		return s, nil
	}
	return fallback, nil
}
