//go:build !integration

package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/domain/ports/adapter"
)

type reconcileFixture struct {
	sessions  *mockSessionRepo
	grants    *mockAccessRepo
	transacts *mockTransactionRepo
	notifier  *mockNotifier
	deduper   *mockDeduper
	uc        ReconcileUseCase
}

func newReconcileFixture(t *testing.T, opts ...func(*reconcileFixture)) *reconcileFixture {
	t.Helper()
	f := &reconcileFixture{
		sessions:  newMockSessionRepo(),
		grants:    newMockAccessRepo(),
		transacts: newMockTransactionRepo(),
	}
	for _, opt := range opts {
		opt(f)
	}

	log := newTestLogger()
	categories := newMockCategoryRepo()
	sessionUC := NewSessionUseCase(f.sessions, categories, f.grants, f.transacts,
		testPaymentURL, 4*time.Hour, log)
	matcher := NewMatcher(f.sessions, testMatchingConfig(), log)
	classifier := NewClassifier([]string{"TESFREE"})

	// Typed-nil interfaces would defeat the optional-dependency guards.
	var deduper DeliveryDeduper
	if f.deduper != nil {
		deduper = f.deduper
	}
	var notifier adapter.Notifier
	if f.notifier != nil {
		notifier = f.notifier
	}
	f.uc = NewReconcileUseCase(f.sessions, f.transacts, sessionUC, matcher, classifier,
		&mockTxManager{}, deduper, notifier, "mayar", log)
	return f
}

func withDeduper() func(*reconcileFixture) {
	return func(f *reconcileFixture) { f.deduper = newMockDeduper() }
}

func withNotifier() func(*reconcileFixture) {
	return func(f *reconcileFixture) { f.notifier = newMockNotifier() }
}

func webhookBody(txID string, amount int64, coupon string) []byte {
	body := fmt.Sprintf(`{
		"event": "payment.received",
		"data": {
			"transactionId": %q,
			"id": "wh-%s",
			"status": "SUCCESS",
			"amount": %d,
			"customerEmail": "buyer@example.com",
			"customerName": "Buyer",
			"couponUsed": %q,
			"productName": "Advanced Math"
		}
	}`, txID, txID, amount, coupon)
	return []byte(body)
}

func TestReconcileUseCase_Process(t *testing.T) {
	ctx := context.Background()

	t.Run("normal payment completes the session and grants access", func(t *testing.T) {
		// Arrange
		f := newReconcileFixture(t)
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)

		// Act
		res, err := f.uc.Process(ctx, webhookBody("tx-1", 50000, ""))

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !res.Processed {
			t.Fatalf("expected processed result, got: %+v", res)
		}
		if res.MatchingMethod != MatchMethodExact {
			t.Errorf("expected method %q, got %q", MatchMethodExact, res.MatchingMethod)
		}
		if res.Data == nil {
			t.Fatal("expected finalization data")
		}
		if res.Data.AccessType != model.AccessTypePaid {
			t.Errorf("expected paid access, got %s", res.Data.AccessType)
		}
		if res.Data.Discount != 0 || res.Data.DiscountPercentage != 0 {
			t.Errorf("full-price settle must carry no discount, got %+v", res.Data)
		}

		s := f.sessions.get("sess-1")
		if s.Status != model.SessionStatusCompleted {
			t.Errorf("expected completed session, got %s", s.Status)
		}
		if s.TransactionID == nil || *s.TransactionID != "tx-1" {
			t.Error("expected gateway transaction id stamped on the session")
		}
		if _, err := f.grants.Find(ctx, nil, "user-1", "cat-1"); err != nil {
			t.Errorf("expected access grant, got: %v", err)
		}

		recs := f.transacts.all()
		if len(recs) != 1 {
			t.Fatalf("expected 1 ledger row, got %d", len(recs))
		}
		if recs[0].ID == "" {
			t.Error("expected a generated ledger id")
		}
		if recs[0].Gateway != "mayar" || recs[0].GatewayTransactionID != "tx-1" {
			t.Errorf("unexpected ledger row: %+v", recs[0])
		}
		if len(recs[0].RawPayload) == 0 {
			t.Error("expected the raw payload on the ledger row")
		}
	})

	t.Run("fully discounted payment records 100 percent against the paid session", func(t *testing.T) {
		// Arrange: the gateway settled 0 with a test coupon; the session
		// expected full price.
		f := newReconcileFixture(t)
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)

		// Act
		res, err := f.uc.Process(ctx, webhookBody("tx-1", 0, "TESFREE"))

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !res.Processed {
			t.Fatalf("expected processed result, got: %+v", res)
		}
		if res.MatchingMethod != MatchMethodZeroAmount {
			t.Errorf("expected method %q, got %q", MatchMethodZeroAmount, res.MatchingMethod)
		}
		if res.Data.AccessType != model.AccessTypePaid {
			t.Errorf("a discounted paid item stays a paid grant, got %s", res.Data.AccessType)
		}
		if res.Data.OriginalAmount != 50000 || res.Data.ActualAmount != 0 {
			t.Errorf("unexpected amounts: %+v", res.Data)
		}
		if res.Data.Discount != 50000 || res.Data.DiscountPercentage != 100 {
			t.Errorf("expected full discount, got %+v", res.Data)
		}
		if res.Data.CouponUsed != "TESFREE" {
			t.Errorf("expected coupon recorded, got %q", res.Data.CouponUsed)
		}
	})

	t.Run("unmatched webhook reports processed false with a debug snapshot", func(t *testing.T) {
		// Arrange: sessions exist but none can satisfy any strategy.
		f := newReconcileFixture(t)
		seedSession(t, f.sessions, "sess-old", "buyer@example.com", 75000, model.SessionStatusCompleted, 2*time.Hour)

		// Act
		res, err := f.uc.Process(ctx, webhookBody("tx-1", 50000, ""))

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if res.Processed {
			t.Fatal("unmatched webhook must not report processed")
		}
		if len(res.RecentSessions) != 1 {
			t.Fatalf("expected 1 debug session, got %d", len(res.RecentSessions))
		}
		if res.RecentSessions[0].SessionID != "sess-old" {
			t.Errorf("unexpected debug session: %+v", res.RecentSessions[0])
		}
		if len(f.transacts.all()) != 0 {
			t.Error("unmatched webhook must not write the ledger")
		}
		if f.grants.count() != 0 {
			t.Error("unmatched webhook must not grant access")
		}
	})

	t.Run("wrong event type is ignored", func(t *testing.T) {
		f := newReconcileFixture(t)
		body := []byte(`{"event":"payment.failed","data":{"transactionId":"tx-1","status":"FAILED"}}`)

		res, err := f.uc.Process(ctx, body)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !res.Ignored || res.Processed {
			t.Errorf("expected ignored result, got: %+v", res)
		}
	})

	t.Run("unsuccessful payment is ignored", func(t *testing.T) {
		f := newReconcileFixture(t)
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)
		body := []byte(`{"event":"payment.received","data":{"transactionId":"tx-1","status":"PENDING","amount":50000,"customerEmail":"buyer@example.com"}}`)

		res, err := f.uc.Process(ctx, body)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !res.Ignored {
			t.Errorf("expected ignored result, got: %+v", res)
		}
		if f.sessions.get("sess-1").Status != model.SessionStatusPending {
			t.Error("ignored webhook must not touch the session")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newReconcileFixture(t)
		_, err := f.uc.Process(ctx, []byte(`not json`))
		if !errors.Is(err, domain.ErrInvalidPayload) {
			t.Errorf("expected ErrInvalidPayload, got: %v", err)
		}
	})

	t.Run("double delivery yields one grant and one ledger row", func(t *testing.T) {
		// Arrange
		f := newReconcileFixture(t, withDeduper())
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)
		body := webhookBody("tx-1", 50000, "")

		// Act
		first, err := f.uc.Process(ctx, body)
		if err != nil {
			t.Fatalf("first delivery failed: %v", err)
		}
		second, err := f.uc.Process(ctx, body)
		if err != nil {
			t.Fatalf("second delivery failed: %v", err)
		}

		// Assert
		if !first.Processed || first.Duplicate {
			t.Errorf("unexpected first result: %+v", first)
		}
		if !second.Processed || !second.Duplicate {
			t.Errorf("expected duplicate result, got: %+v", second)
		}
		if got := len(f.transacts.all()); got != 1 {
			t.Errorf("expected 1 ledger row, got %d", got)
		}
		if f.grants.count() != 1 {
			t.Errorf("expected 1 grant, got %d", f.grants.count())
		}
	})

	t.Run("double delivery without dedup is still idempotent", func(t *testing.T) {
		// The second pass finds no matchable session, so it lands unmatched.
		f := newReconcileFixture(t)
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)
		body := webhookBody("tx-1", 50000, "")

		first, err := f.uc.Process(ctx, body)
		if err != nil {
			t.Fatalf("first delivery failed: %v", err)
		}
		second, err := f.uc.Process(ctx, body)
		if err != nil {
			t.Fatalf("second delivery failed: %v", err)
		}

		if !first.Processed {
			t.Errorf("unexpected first result: %+v", first)
		}
		if second.Processed {
			t.Errorf("expected unmatched second result, got: %+v", second)
		}
		if got := len(f.transacts.all()); got != 1 {
			t.Errorf("expected 1 ledger row, got %d", got)
		}
		if f.grants.count() != 1 {
			t.Errorf("expected 1 grant, got %d", f.grants.count())
		}
	})

	t.Run("grant failure fails the webhook", func(t *testing.T) {
		// Arrange
		f := newReconcileFixture(t)
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)
		f.grants.failUpsert = errors.New("grant store down")

		// Act
		_, err := f.uc.Process(ctx, webhookBody("tx-1", 50000, ""))

		// Assert: the gateway must retry, nothing may be half-settled.
		if err == nil {
			t.Fatal("expected an error")
		}
		if f.sessions.get("sess-1").Status != model.SessionStatusPending {
			t.Error("session must stay pending when the grant fails")
		}
		if len(f.transacts.all()) != 0 {
			t.Error("ledger must stay empty when the grant fails")
		}
	})

	t.Run("grant failure releases the delivery marker so a retry succeeds", func(t *testing.T) {
		// Arrange
		f := newReconcileFixture(t, withDeduper())
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)
		f.grants.failUpsert = errors.New("grant store down")
		body := webhookBody("tx-1", 50000, "")

		// Act: first delivery fails, the store recovers, the gateway retries.
		if _, err := f.uc.Process(ctx, body); err == nil {
			t.Fatal("expected an error")
		}
		if f.deduper.marked("tx-1") {
			t.Fatal("failed delivery must not keep the marker")
		}
		f.grants.failUpsert = nil
		res, err := f.uc.Process(ctx, body)

		// Assert
		if err != nil {
			t.Fatalf("retry failed: %v", err)
		}
		if !res.Processed || res.Duplicate {
			t.Fatalf("retry must run the full chain, got: %+v", res)
		}
		if f.grants.count() != 1 {
			t.Errorf("expected 1 grant after the retry, got %d", f.grants.count())
		}
		if f.sessions.get("sess-1").Status != model.SessionStatusCompleted {
			t.Error("expected the retried session to complete")
		}
	})

	t.Run("unmatched delivery releases the delivery marker", func(t *testing.T) {
		// Arrange: no session exists yet; an operator creates one and
		// replays the same payload.
		f := newReconcileFixture(t, withDeduper())
		body := webhookBody("tx-1", 50000, "")

		// Act
		first, err := f.uc.Process(ctx, body)
		if err != nil {
			t.Fatalf("first delivery failed: %v", err)
		}
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)
		second, err := f.uc.Process(ctx, body)

		// Assert
		if err != nil {
			t.Fatalf("replay failed: %v", err)
		}
		if first.Processed {
			t.Errorf("expected unmatched first result, got: %+v", first)
		}
		if !second.Processed || second.Duplicate {
			t.Fatalf("replay must not be short-circuited, got: %+v", second)
		}
		if f.grants.count() != 1 {
			t.Errorf("expected 1 grant after the replay, got %d", f.grants.count())
		}
	})

	t.Run("ledger failure after grant does not fail the webhook", func(t *testing.T) {
		f := newReconcileFixture(t)
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)
		f.transacts.failInsert = errors.New("ledger down")

		res, err := f.uc.Process(ctx, webhookBody("tx-1", 50000, ""))
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !res.Processed {
			t.Errorf("expected processed result, got: %+v", res)
		}
		if f.grants.count() != 1 {
			t.Errorf("expected the grant to stand, got %d", f.grants.count())
		}
	})

	t.Run("notifier receives the confirmation", func(t *testing.T) {
		f := newReconcileFixture(t, withNotifier())
		seedSession(t, f.sessions, "sess-1", "buyer@example.com", 50000, model.SessionStatusPending, 5*time.Minute)

		res, err := f.uc.Process(ctx, webhookBody("tx-1", 50000, ""))
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if !res.Processed {
			t.Fatalf("expected processed result, got: %+v", res)
		}
		if !f.notifier.wait(time.Second) {
			t.Fatal("expected a notification within 1s")
		}
		sent := f.notifier.sent()
		if len(sent) != 1 {
			t.Fatalf("expected 1 notice, got %d", len(sent))
		}
		if sent[0].CustomerEmail != "buyer@example.com" || sent[0].SessionID != "sess-1" {
			t.Errorf("unexpected notice: %+v", sent[0])
		}
	})
}
