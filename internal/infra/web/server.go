package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"quiz-payment-relay/internal/usecase"
)

// Pinger reports readiness of one backing dependency.
type Pinger func(ctx context.Context) error

type healthProbe struct {
	name string
	ping Pinger
}

type Server struct {
	sessionUC   usecase.SessionUseCase
	reconcileUC usecase.ReconcileUseCase
	probes      []healthProbe
	log         *zerolog.Logger
}

func NewServer(sessionUC usecase.SessionUseCase, reconcileUC usecase.ReconcileUseCase, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "WebServer").Logger()
	return &Server{sessionUC: sessionUC, reconcileUC: reconcileUC, log: &l}
}

// WithHealthProbe registers a dependency check for the health endpoint.
func (s *Server) WithHealthProbe(name string, p Pinger) *Server {
	s.probes = append(s.probes, healthProbe{name: name, ping: p})
	return s
}

// Router builds the HTTP surface. The webhook route carries a generous
// timeout because finalization touches the database twice.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.With(Timeout(30 * time.Second)).Post("/webhook", s.handleWebhook)
		r.Get("/webhook", s.handleWebhookInfo)

		r.With(Timeout(10 * time.Second)).Post("/create-payment-session", s.handleCreateSession)
		r.With(Timeout(10 * time.Second)).Get("/check-payment-session", s.handleCheckSession)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.With(Timeout(10 * time.Second)).Get("/sessions", s.handleUserSessions)
			r.With(Timeout(10 * time.Second)).Get("/transactions", s.handleUserTransactions)
		})

		r.Get("/health", s.handleHealth)
	})

	r.Handle("/metrics", promhttp.Handler())
	return Chain(r, TraceID(), Recover(s.log), RequestLog(s.log))
}
