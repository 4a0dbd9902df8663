package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
		webhookDuration,
		matchAttemptsTotal,
	)
}

var (
	// outcome: processed|unmatched|ignored|duplicate|invalid|error
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Inbound gateway webhooks by outcome.",
		},
		[]string{"outcome"},
	)

	webhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_duration_seconds",
			Help:    "Duration of webhook processing in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"outcome"},
	)

	// result: hit|miss
	matchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_attempts_total",
			Help: "Session-matching strategy attempts by strategy and result.",
		},
		[]string{"strategy", "result"},
	)
)

func IncWebhook(outcome string) {
	webhooksTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveWebhookDuration(outcome string, seconds float64) {
	webhookDuration.WithLabelValues(norm(outcome)).Observe(seconds)
}

func IncMatchAttempt(strategy string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	matchAttemptsTotal.WithLabelValues(norm(strategy), result).Inc()
}
