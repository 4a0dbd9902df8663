package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/repository"
	"quiz-payment-relay/internal/infra/metrics"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// MatchMethodFreeAccess is stamped on sessions completed synchronously at
// creation time because the category required no payment leg.
const MatchMethodFreeAccess = "free_access"

type SessionUseCase interface {
	// Create registers a purchase intent. Free categories are granted and
	// completed synchronously; paid ones get a pending session plus a
	// checkout redirect URL.
	Create(ctx context.Context, userID, categoryID, userEmail string) (*SessionResult, error)
	// Check reports session status, lazily reclassifying expired sessions.
	// userID is optional; when supplied it must match the session owner.
	Check(ctx context.Context, sessionID, userID string) (*SessionStatus, error)
	// GrantAccess is an idempotent upsert keyed on (userID, categoryID).
	GrantAccess(ctx context.Context, tx repository.Tx, userID, categoryID string, accessType model.AccessType) error
	// ExpireStale bulk-reclassifies pending sessions past their window.
	ExpireStale(ctx context.Context) (int, error)

	ListUserSessions(ctx context.Context, userID string) ([]*model.PaymentSession, error)
	ListUserTransactions(ctx context.Context, userID string) ([]*model.TransactionRecord, error)
}

// SessionResult is the session-creation contract returned to the client API.
type SessionResult struct {
	Success      bool      `json:"success"`
	SessionID    string    `json:"sessionId"`
	PaymentURL   *string   `json:"paymentUrl"`
	CategoryName string    `json:"categoryName"`
	Amount       int64     `json:"amount"`
	IsFree       bool      `json:"isFree"`
	HasAccess    bool      `json:"hasAccess"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// SessionStatus is the check-session contract.
type SessionStatus struct {
	Success     bool                `json:"success"`
	Status      model.SessionStatus `json:"status"`
	ExpiresAt   time.Time           `json:"expiresAt"`
	ProcessedAt *time.Time          `json:"processedAt,omitempty"`
	HasAccess   bool                `json:"hasAccess"`
	Session     SessionInfo         `json:"sessionInfo"`
}

// SessionInfo exposes session metadata for observability.
type SessionInfo struct {
	CategoryID     string    `json:"categoryId"`
	UserEmail      string    `json:"userEmail"`
	ExpectedAmount int64     `json:"expectedAmount"`
	ActualAmount   int64     `json:"actualAmount"`
	IsFree         bool      `json:"isFree"`
	CouponUsed     string    `json:"couponUsed,omitempty"`
	MatchingMethod string    `json:"matchingMethod,omitempty"`
	TransactionID  string    `json:"transactionId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type sessionUC struct {
	sessions     repository.SessionRepository
	categories   repository.CategoryRepository
	grants       repository.AccessGrantRepository
	transactions repository.TransactionRepository
	paymentURL   string
	expiry       time.Duration
	log          *zerolog.Logger
}

func NewSessionUseCase(
	sessions repository.SessionRepository,
	categories repository.CategoryRepository,
	grants repository.AccessGrantRepository,
	transactions repository.TransactionRepository,
	paymentURL string,
	expiry time.Duration,
	logger *zerolog.Logger,
) *sessionUC {
	l := logger.With().Str("component", "SessionUC").Logger()
	return &sessionUC{
		sessions:     sessions,
		categories:   categories,
		grants:       grants,
		transactions: transactions,
		paymentURL:   paymentURL,
		expiry:       expiry,
		log:          &l,
	}
}

func (u *sessionUC) Create(ctx context.Context, userID, categoryID, userEmail string) (*SessionResult, error) {
	if userID == "" || categoryID == "" || userEmail == "" {
		return nil, domain.ErrInvalidArgument
	}

	cat, err := u.categories.FindByID(ctx, repository.NoTX, categoryID)
	if err != nil {
		return nil, err
	}

	// Reject a second purchase of a category the user already holds.
	if _, err := u.grants.Find(ctx, repository.NoTX, userID, categoryID); err == nil {
		return nil, domain.ErrAccessExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	isFree := cat.IsFree()
	amount := cat.PriceAmount
	if isFree {
		amount = 0
	}

	now := time.Now()
	s := &model.PaymentSession{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		CategoryID:     categoryID,
		UserEmail:      userEmail,
		ExpectedAmount: amount,
		Status:         model.SessionStatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(u.expiry),
	}
	if err := u.sessions.Save(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}

	if isFree {
		// No payment leg: grant immediately and complete the session so the
		// audit trail stays uniform with paid purchases.
		if err := u.GrantAccess(ctx, repository.NoTX, userID, categoryID, model.AccessTypeFree); err != nil {
			return nil, err
		}
		if _, err := u.sessions.CompleteIf(ctx, repository.NoTX, s.SessionID,
			[]model.SessionStatus{model.SessionStatusPending},
			repository.SessionCompletion{ProcessedAt: now, MatchingMethod: MatchMethodFreeAccess},
		); err != nil {
			u.log.Warn().Err(err).Str("session_id", s.SessionID).Msg("failed to complete free session")
		}
		metrics.IncSessionCreated("free")
		u.log.Info().Str("session_id", s.SessionID).Str("category_id", categoryID).Msg("free access granted")
		return &SessionResult{
			Success:      true,
			SessionID:    s.SessionID,
			PaymentURL:   nil,
			CategoryName: cat.Name,
			Amount:       0,
			IsFree:       true,
			HasAccess:    true,
			ExpiresAt:    s.ExpiresAt,
		}, nil
	}

	payURL := u.paymentURL + "?ref=" + s.SessionID
	metrics.IncSessionCreated("paid")
	u.log.Info().
		Str("session_id", s.SessionID).
		Str("category_id", categoryID).
		Int64("amount", amount).
		Time("expires_at", s.ExpiresAt).
		Msg("payment session created")
	return &SessionResult{
		Success:      true,
		SessionID:    s.SessionID,
		PaymentURL:   &payURL,
		CategoryName: cat.Name,
		Amount:       amount,
		IsFree:       false,
		HasAccess:    false,
		ExpiresAt:    s.ExpiresAt,
	}, nil
}

func (u *sessionUC) Check(ctx context.Context, sessionID, userID string) (*SessionStatus, error) {
	if sessionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	s, err := u.sessions.FindByID(ctx, repository.NoTX, sessionID)
	if err != nil {
		return nil, err
	}
	if userID != "" && s.UserID != userID {
		return nil, domain.ErrUnauthorized
	}

	// Expiry is observed, not background-only: a stale pending session flips
	// to expired on this read.
	now := time.Now()
	if s.Status == model.SessionStatusPending && s.ExpiredAt(now) {
		if _, err := u.sessions.UpdateStatusIf(ctx, repository.NoTX, s.SessionID,
			model.SessionStatusPending, model.SessionStatusExpired); err != nil {
			return nil, err
		}
		s.Status = model.SessionStatusExpired
		metrics.IncSessionsExpired(1)
	}

	hasAccess := false
	if s.Status == model.SessionStatusCompleted {
		if _, err := u.grants.Find(ctx, repository.NoTX, s.UserID, s.CategoryID); err == nil {
			hasAccess = true
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	info := SessionInfo{
		CategoryID:     s.CategoryID,
		UserEmail:      s.UserEmail,
		ExpectedAmount: s.ExpectedAmount,
		ActualAmount:   s.ExpectedAmount,
		IsFree:         s.ExpectedAmount == 0,
		CreatedAt:      s.CreatedAt,
	}
	if s.ActualAmount != nil {
		info.ActualAmount = *s.ActualAmount
	}
	if s.CouponUsed != nil {
		info.CouponUsed = *s.CouponUsed
	}
	if s.MatchingMethod != nil {
		info.MatchingMethod = *s.MatchingMethod
	}
	if s.TransactionID != nil {
		info.TransactionID = *s.TransactionID
	}

	return &SessionStatus{
		Success:     true,
		Status:      s.Status,
		ExpiresAt:   s.ExpiresAt,
		ProcessedAt: s.ProcessedAt,
		HasAccess:   hasAccess,
		Session:     info,
	}, nil
}

func (u *sessionUC) GrantAccess(ctx context.Context, tx repository.Tx, userID, categoryID string, accessType model.AccessType) error {
	if userID == "" || categoryID == "" {
		return domain.ErrInvalidArgument
	}
	if accessType != model.AccessTypeFree && accessType != model.AccessTypePaid {
		return domain.ErrInvalidArgument
	}
	g := &model.AccessGrant{
		UserID:     userID,
		CategoryID: categoryID,
		AccessType: accessType,
		GrantedAt:  time.Now(),
	}
	if err := u.grants.Upsert(ctx, tx, g); err != nil {
		return err
	}
	metrics.IncGrant(string(accessType))
	return nil
}

func (u *sessionUC) ExpireStale(ctx context.Context) (int, error) {
	return u.sessions.ExpireOlderThan(ctx, repository.NoTX, time.Now())
}

func (u *sessionUC) ListUserSessions(ctx context.Context, userID string) ([]*model.PaymentSession, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.sessions.ListByUser(ctx, repository.NoTX, userID, 50)
}

func (u *sessionUC) ListUserTransactions(ctx context.Context, userID string) ([]*model.TransactionRecord, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.transactions.ListByUser(ctx, repository.NoTX, userID, 50)
}
