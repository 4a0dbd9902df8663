package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"quiz-payment-relay/internal/infra/metrics"
	"quiz-payment-relay/internal/usecase"
)

// CleanupWorker periodically reclassifies stale pending sessions to expired.
// Expiry is also observed lazily on reads; the sweep keeps status counts
// honest for sessions nobody checks again.
type CleanupWorker struct {
	interval  time.Duration
	sessionUC usecase.SessionUseCase
	log       *zerolog.Logger
}

func NewCleanupWorker(interval time.Duration, sessionUC usecase.SessionUseCase, logger *zerolog.Logger) *CleanupWorker {
	l := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{
		interval:  interval,
		sessionUC: sessionUC,
		log:       &l,
	}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting session cleanup worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.sessionUC.ExpireStale(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("session cleanup error")
				continue
			}
			if n > 0 {
				metrics.IncSessionsExpired(n)
				w.log.Info().Int("count", n).Msg("stale sessions expired")
			}
		}
	}
}
