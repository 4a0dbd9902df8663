package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis-backed dedup
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	DedupTTL time.Duration `yaml:"dedup_ttl"` // how long a delivery marker lives
}

type PaymentConfig struct {
	Gateway     string   `yaml:"gateway"`      // provider name recorded in the ledger
	PaymentURL  string   `yaml:"payment_url"`  // base checkout URL; session id appended as ?ref=
	TestCoupons []string `yaml:"test_coupons"` // coupon codes recognized for flexible matching
}

type SessionsConfig struct {
	Expiry          time.Duration `yaml:"expiry"`           // pending session validity window
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // expiry sweep cadence
}

// MatchingConfig holds the per-strategy time windows of the reconciliation
// chain. Behavior differences between strategies are config diffs, not code.
type MatchingConfig struct {
	ZeroAmountWindow time.Duration `yaml:"zero_amount_window"`
	CouponWindow     time.Duration `yaml:"coupon_window"`
	FallbackWindow   time.Duration `yaml:"fallback_window"`
	CandidateLimit   int           `yaml:"candidate_limit"`
}

type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SMTPAddr string `yaml:"smtp_addr"` // host:port
	SMTPHost string `yaml:"smtp_host"` // for AUTH; defaults to host part of smtp_addr
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Payment  PaymentConfig  `yaml:"payment"`
	Sessions SessionsConfig `yaml:"sessions"`
	Matching MatchingConfig `yaml:"matching"`
	Notify   NotifyConfig   `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.DedupTTL <= 0 {
		cfg.Redis.DedupTTL = 24 * time.Hour
	}
	if cfg.Payment.Gateway == "" {
		cfg.Payment.Gateway = "mayar"
	}
	if cfg.Sessions.Expiry <= 0 {
		cfg.Sessions.Expiry = 4 * time.Hour
	}
	if cfg.Sessions.CleanupInterval <= 0 {
		cfg.Sessions.CleanupInterval = 15 * time.Minute
	}
	if cfg.Matching.ZeroAmountWindow <= 0 {
		cfg.Matching.ZeroAmountWindow = 4 * time.Hour
	}
	if cfg.Matching.CouponWindow <= 0 {
		cfg.Matching.CouponWindow = time.Hour
	}
	if cfg.Matching.FallbackWindow <= 0 {
		cfg.Matching.FallbackWindow = 30 * time.Minute
	}
	if cfg.Matching.CandidateLimit <= 0 {
		cfg.Matching.CandidateLimit = 10
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Payment.PaymentURL == "" {
		return nil, errors.New("payment.payment_url is required")
	}
	if cfg.Notify.Enabled {
		if cfg.Notify.SMTPAddr == "" || cfg.Notify.From == "" {
			return nil, errors.New("notify.smtp_addr and notify.from are required when notify.enabled")
		}
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
