package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"quiz-payment-relay/internal/domain"
	"quiz-payment-relay/internal/domain/model"
	"quiz-payment-relay/internal/infra/metrics"
	"quiz-payment-relay/internal/usecase"
)

const maxWebhookBody = 1 << 20 // 1 MiB

const apiVersion = "2.0.0"

// envelope is the wire format shared by all API responses.
type envelope struct {
	StatusCode     int         `json:"statusCode"`
	Messages       string      `json:"messages"`
	Processed      *bool       `json:"processed,omitempty"`
	MatchingMethod string      `json:"matchingMethod,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	RecentSessions interface{} `json:"recentSessions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeEnvelope(w http.ResponseWriter, env envelope) {
	writeJSON(w, env.StatusCode, env)
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccessExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		// Do not leak internals to the gateway or the client app.
		return "internal server error"
	}
	return err.Error()
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errStatus(err)
	writeEnvelope(w, envelope{StatusCode: status, Messages: errMessage(err, status)})
}

func boolPtr(b bool) *bool { return &b }

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "error"
	defer func() {
		metrics.IncWebhook(outcome)
		metrics.ObserveWebhookDuration(outcome, time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		s.writeError(w, domain.ErrInvalidPayload)
		outcome = "invalid"
		return
	}

	res, err := s.reconcileUC.Process(r.Context(), body)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			outcome = "invalid"
		}
		s.writeError(w, err)
		return
	}

	switch {
	case res.Ignored:
		outcome = "ignored"
	case res.Duplicate:
		outcome = "duplicate"
	case res.Processed:
		outcome = "processed"
	default:
		outcome = "unmatched"
	}

	env := envelope{
		StatusCode:     http.StatusOK,
		Messages:       res.Message,
		MatchingMethod: res.MatchingMethod,
	}
	if !res.Ignored {
		env.Processed = boolPtr(res.Processed)
	}
	if res.Data != nil {
		env.Data = res.Data
	}
	if len(res.RecentSessions) > 0 {
		env.RecentSessions = res.RecentSessions
	}
	writeEnvelope(w, env)
}

// handleWebhookInfo answers gateway dashboard probes with an introspection
// document: what the endpoint accepts, a replayable test payload, and the
// reachability of the backing dependencies.
func (s *Server) handleWebhookInfo(w http.ResponseWriter, r *http.Request) {
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") == "" {
		scheme = "http"
	}
	webhookURL := scheme + "://" + r.Host + "/api/webhook"

	deps := make(map[string]bool, len(s.probes))
	for _, p := range s.probes {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		deps[p.name] = p.ping(ctx) == nil
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"message":    "payment webhook handler ready",
		"version":    apiVersion,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"webhookUrl": webhookURL,
		"gatewayConfig": map[string]interface{}{
			"webhookUrl":       webhookURL,
			"supportedEvents":  []string{model.EventPaymentReceived},
			"supportedMethods": []string{http.MethodPost},
			"contentType":      "application/json",
		},
		"supportedScenarios": []string{
			usecase.MatchMethodExact,
			usecase.MatchMethodZeroAmount,
			usecase.MatchMethodTestCoupon,
			usecase.MatchMethodFallback,
		},
		"testPayload": map[string]interface{}{
			"event": model.EventPaymentReceived,
			"data": map[string]interface{}{
				"transactionId":     "00000000-0000-0000-0000-000000000000",
				"status":            "SUCCESS",
				"transactionStatus": "paid",
				"amount":            0,
				"customerEmail":     "buyer@example.com",
				"customerName":      "Test Buyer",
			},
		},
		"instructions": map[string]string{
			"setup":       "configure the gateway webhook URL: " + webhookURL,
			"event":       model.EventPaymentReceived,
			"method":      http.MethodPost,
			"contentType": "application/json",
			"testing":     "POST the testPayload structure to this URL",
		},
		"dependencies": deps,
	})
}

type createSessionRequest struct {
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId"`
	UserEmail  string `json:"userEmail"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&req); err != nil {
		s.writeError(w, domain.ErrInvalidArgument)
		return
	}

	res, err := s.sessionUC.Create(r.Context(), req.UserID, req.CategoryID, req.UserEmail)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCheckSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session_id")
	}
	userID := r.URL.Query().Get("userId")

	res, err := s.sessionUC.Check(r.Context(), sessionID, userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sessions, err := s.sessionUC.ListUserSessions(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type sessionView struct {
		SessionID      string     `json:"sessionId"`
		CategoryID     string     `json:"categoryId"`
		ExpectedAmount int64      `json:"expectedAmount"`
		Status         string     `json:"status"`
		CreatedAt      time.Time  `json:"createdAt"`
		ExpiresAt      time.Time  `json:"expiresAt"`
		ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{
			SessionID:      sess.SessionID,
			CategoryID:     sess.CategoryID,
			ExpectedAmount: sess.ExpectedAmount,
			Status:         string(sess.Status),
			CreatedAt:      sess.CreatedAt,
			ExpiresAt:      sess.ExpiresAt,
			ProcessedAt:    sess.ProcessedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (s *Server) handleUserTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	records, err := s.sessionUC.ListUserTransactions(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	type transactionView struct {
		ID                 string    `json:"id"`
		SessionID          string    `json:"sessionId"`
		CategoryID         string    `json:"categoryId"`
		Gateway            string    `json:"gateway"`
		TransactionID      string    `json:"transactionId"`
		ExpectedAmount     int64     `json:"expectedAmount"`
		ActualAmount       int64     `json:"actualAmount"`
		Discount           int64     `json:"discount"`
		DiscountPercentage int       `json:"discountPercentage"`
		CouponUsed         string    `json:"couponUsed,omitempty"`
		MatchingMethod     string    `json:"matchingMethod"`
		CreatedAt          time.Time `json:"createdAt"`
	}
	views := make([]transactionView, 0, len(records))
	for _, rec := range records {
		views = append(views, transactionView{
			ID:                 rec.ID,
			SessionID:          rec.SessionID,
			CategoryID:         rec.CategoryID,
			Gateway:            rec.Gateway,
			TransactionID:      rec.GatewayTransactionID,
			ExpectedAmount:     rec.ExpectedAmount,
			ActualAmount:       rec.ActualAmount,
			Discount:           rec.Discount,
			DiscountPercentage: rec.DiscountPercentage,
			CouponUsed:         rec.CouponUsed,
			MatchingMethod:     rec.MatchingMethod,
			CreatedAt:          rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": views})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string, len(s.probes))
	status := http.StatusOK
	for _, p := range s.probes {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := p.ping(ctx)
		cancel()
		if err != nil {
			s.log.Warn().Err(err).Str("dependency", p.name).Msg("health probe failed")
			deps[p.name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[p.name] = "ok"
	}
	body := map[string]interface{}{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, status, body)
}
