package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-payment-relay/internal/config"
	"quiz-payment-relay/internal/domain/ports/adapter"
	pg "quiz-payment-relay/internal/infra/db/postgres"
	"quiz-payment-relay/internal/infra/logging"
	"quiz-payment-relay/internal/infra/metrics"
	"quiz-payment-relay/internal/infra/notify"
	red "quiz-payment-relay/internal/infra/redis"
	"quiz-payment-relay/internal/infra/sched"
	"quiz-payment-relay/internal/infra/web"
	"quiz-payment-relay/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no sampling)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	sessionRepo := pg.NewSessionRepo(pool)
	categoryRepo := pg.NewCategoryRepo(pool)
	accessRepo := pg.NewAccessRepo(pool)
	transactionRepo := pg.NewTransactionRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Redis (optional; dedup degrades gracefully without it) ----
	var deduper usecase.DeliveryDeduper
	var redisPing web.Pinger
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		deduper = red.NewDeliveryDeduper(redisClient, cfg.Redis.DedupTTL)
		redisPing = redisClient.Ping
	} else {
		logger.Warn().Msg("redis.url not set; webhook delivery dedup disabled")
	}

	// ---- Notifier (optional) ----
	var notifier adapter.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.NewEmailNotifier(cfg.Notify, logger)
	}

	// ---- Use cases ----
	sessionUC := usecase.NewSessionUseCase(sessionRepo, categoryRepo, accessRepo, transactionRepo,
		cfg.Payment.PaymentURL, cfg.Sessions.Expiry, logger)
	matcher := usecase.NewMatcher(sessionRepo, cfg.Matching, logger)
	classifier := usecase.NewClassifier(cfg.Payment.TestCoupons)
	reconcileUC := usecase.NewReconcileUseCase(sessionRepo, transactionRepo, sessionUC,
		matcher, classifier, txManager, deduper, notifier, cfg.Payment.Gateway, logger)

	// ---- HTTP server ----
	srv := web.NewServer(sessionUC, reconcileUC, logger).
		WithHealthProbe("postgres", pool.Ping)
	if redisPing != nil {
		srv = srv.WithHealthProbe("redis", redisPing)
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Session cleanup worker ----
	worker := sched.NewCleanupWorker(cfg.Sessions.CleanupInterval, sessionUC, logger)
	go func() { _ = worker.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
