package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sessionsCreatedTotal,
		sessionsExpiredTotal,
		grantsTotal,
		transactionsRevenueTotal,
	)
}

var (
	// kind: free|paid
	sessionsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_created_total",
			Help: "Payment sessions created, by free/paid kind.",
		},
		[]string{"kind"},
	)

	sessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_sessions_expired_total",
			Help: "Pending sessions reclassified to expired (lazy reads and sweeps).",
		},
	)

	grantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_grants_total",
			Help: "Access grant upserts by access type.",
		},
		[]string{"access_type"},
	)

	transactionsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "transactions_revenue_total",
			Help: "Total settled amount across reconciled transactions, in minor units.",
		},
	)
)

func IncSessionCreated(kind string) {
	sessionsCreatedTotal.WithLabelValues(norm(kind)).Inc()
}

func IncSessionsExpired(n int) {
	sessionsExpiredTotal.Add(float64(n))
}

func IncGrant(accessType string) {
	grantsTotal.WithLabelValues(norm(accessType)).Inc()
}

func AddRevenue(amount int64) {
	transactionsRevenueTotal.Add(float64(amount))
}
