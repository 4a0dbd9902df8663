//go:build !integration

package usecase

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/adapter"
	"quiz-payment-relay/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// --- Session Repository Mock ---

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.PaymentSession

	failSave     error
	failFind     error
	failComplete error
}

var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.PaymentSession)}
}

func (m *mockSessionRepo) Save(_ context.Context, _ repository.Tx, s *model.PaymentSession) error {
	if m.failSave != nil {
		return m.failSave
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.SessionID] = &cp
	return nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, _ repository.Tx, sessionID string) (*model.PaymentSession, error) {
	if m.failFind != nil {
		return nil, m.failFind
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) FindRecentByEmail(_ context.Context, _ repository.Tx, email string, statuses []model.SessionStatus, since time.Time, limit int) ([]*model.PaymentSession, error) {
	if m.failFind != nil {
		return nil, m.failFind
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentSession
	for _, s := range m.sessions {
		if s.UserEmail != email {
			continue
		}
		if len(statuses) > 0 && !s.Matchable(statuses) {
			continue
		}
		if !since.IsZero() && s.CreatedAt.Before(since) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSessionRepo) ListByUser(_ context.Context, _ repository.Tx, userID string, limit int) ([]*model.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentSession
	for _, s := range m.sessions {
		if s.UserID != userID {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSessionRepo) UpdateStatusIf(_ context.Context, _ repository.Tx, sessionID string, from, to model.SessionStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (m *mockSessionRepo) CompleteIf(_ context.Context, _ repository.Tx, sessionID string, from []model.SessionStatus, c repository.SessionCompletion) (bool, error) {
	if m.failComplete != nil {
		return false, m.failComplete
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || !s.Matchable(from) {
		return false, nil
	}
	s.Status = model.SessionStatusCompleted
	processedAt := c.ProcessedAt
	s.ProcessedAt = &processedAt
	if c.TransactionID != "" {
		txID := c.TransactionID
		s.TransactionID = &txID
	}
	amount := c.ActualAmount
	s.ActualAmount = &amount
	if c.MatchingMethod != "" {
		method := c.MatchingMethod
		s.MatchingMethod = &method
	}
	if c.CouponUsed != "" {
		coupon := c.CouponUsed
		s.CouponUsed = &coupon
	}
	return true, nil
}

func (m *mockSessionRepo) ExpireOlderThan(_ context.Context, _ repository.Tx, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sessions {
		if s.Status == model.SessionStatusPending && now.After(s.ExpiresAt) {
			s.Status = model.SessionStatusExpired
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepo) get(sessionID string) *model.PaymentSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// --- Category Repository Mock ---

type mockCategoryRepo struct {
	mu         sync.Mutex
	categories map[string]*model.Category
}

var _ repository.CategoryRepository = (*mockCategoryRepo)(nil)

func newMockCategoryRepo() *mockCategoryRepo {
	return &mockCategoryRepo{categories: make(map[string]*model.Category)}
}

func (m *mockCategoryRepo) add(c *model.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.categories[c.ID] = c
}

func (m *mockCategoryRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// --- Access Grant Repository Mock ---

type mockAccessRepo struct {
	mu     sync.Mutex
	grants map[string]*model.AccessGrant

	upserts    int
	failUpsert error
}

var _ repository.AccessGrantRepository = (*mockAccessRepo)(nil)

func newMockAccessRepo() *mockAccessRepo {
	return &mockAccessRepo{grants: make(map[string]*model.AccessGrant)}
}

func grantKey(userID, categoryID string) string { return userID + "|" + categoryID }

func (m *mockAccessRepo) Upsert(_ context.Context, _ repository.Tx, g *model.AccessGrant) error {
	if m.failUpsert != nil {
		return m.failUpsert
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	key := grantKey(g.UserID, g.CategoryID)
	if _, exists := m.grants[key]; exists {
		return nil
	}
	cp := *g
	m.grants[key] = &cp
	return nil
}

func (m *mockAccessRepo) Find(_ context.Context, _ repository.Tx, userID, categoryID string) (*model.AccessGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[grantKey(userID, categoryID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *mockAccessRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.grants)
}

// --- Transaction Repository Mock ---

type mockTransactionRepo struct {
	mu      sync.Mutex
	records []*model.TransactionRecord

	failInsert error
}

var _ repository.TransactionRepository = (*mockTransactionRepo)(nil)

func newMockTransactionRepo() *mockTransactionRepo {
	return &mockTransactionRepo{}
}

func (m *mockTransactionRepo) Insert(_ context.Context, _ repository.Tx, rec *model.TransactionRecord) error {
	if m.failInsert != nil {
		return m.failInsert
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records = append(m.records, &cp)
	return nil
}

func (m *mockTransactionRepo) ListByUser(_ context.Context, _ repository.Tx, userID string, limit int) ([]*model.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.TransactionRecord
	for _, r := range m.records {
		if r.UserID != userID {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockTransactionRepo) all() []*model.TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.TransactionRecord, len(m.records))
	copy(out, m.records)
	return out
}

// --- Transaction Manager Mock ---

// mockTxManager runs the callback directly; the mocks behave the same with
// or without a transaction handle.
type mockTxManager struct {
	fail error
}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.fail != nil {
		return m.fail
	}
	return fn(ctx, repository.NoTX)
}

// --- Notifier Mock ---

type mockNotifier struct {
	mu      sync.Mutex
	notices []adapter.PaymentNotice
	done    chan struct{}

	fail error
}

var _ adapter.Notifier = (*mockNotifier)(nil)

func newMockNotifier() *mockNotifier {
	return &mockNotifier{done: make(chan struct{}, 8)}
}

func (m *mockNotifier) PaymentConfirmed(_ context.Context, notice adapter.PaymentNotice) error {
	m.mu.Lock()
	m.notices = append(m.notices, notice)
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.fail
}

// wait blocks until one notification lands or the timeout passes.
func (m *mockNotifier) wait(timeout time.Duration) bool {
	select {
	case <-m.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (m *mockNotifier) sent() []adapter.PaymentNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]adapter.PaymentNotice, len(m.notices))
	copy(out, m.notices)
	return out
}

// --- Delivery Deduper Mock ---

type mockDeduper struct {
	mu   sync.Mutex
	seen map[string]bool

	releases int
	fail     error
}

var _ DeliveryDeduper = (*mockDeduper)(nil)

func newMockDeduper() *mockDeduper {
	return &mockDeduper{seen: make(map[string]bool)}
}

func (m *mockDeduper) FirstDelivery(_ context.Context, transactionID string) (bool, error) {
	if m.fail != nil {
		return false, m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[transactionID] {
		return false, nil
	}
	m.seen[transactionID] = true
	return true, nil
}

func (m *mockDeduper) Release(_ context.Context, transactionID string) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	delete(m.seen, transactionID)
	return nil
}

func (m *mockDeduper) marked(transactionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[transactionID]
}
