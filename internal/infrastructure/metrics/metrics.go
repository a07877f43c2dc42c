// Package metrics holds the Prometheus collectors for the ledger and payout
// paths and the echo glue that exposes them.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"walletledger/pkg/circuitbreaker"
)

const namespace = "walletledger"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status class.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "entries_total",
			Help:      "Ledger entries appended by kind and currency.",
		},
		[]string{"kind", "currency"},
	)

	LedgerWriteConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "write_conflicts_total",
			Help:      "Wallet writes rejected because another writer got there first.",
		},
	)

	LedgerDuplicateClaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "duplicate_claims_total",
			Help:      "Credits or reversals rejected because their reference was already applied.",
		},
	)

	WalletsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "wallets_created_total",
			Help:      "Wallets created on first use.",
		},
	)

	ResolverLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolver",
			Name:      "lookups_total",
			Help:      "Resolver strategy executions by outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	PaymentCompletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "completions_total",
			Help:      "Payment completion requests by outcome.",
		},
		[]string{"outcome"},
	)

	PayoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payouts",
			Name:      "requests_total",
			Help:      "Payout gateway calls by provider, operation and result.",
		},
		[]string{"provider", "operation", "result"},
	)

	PayoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "payouts",
			Name:      "request_duration_seconds",
			Help:      "Payout gateway call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "operation"},
	)

	WithdrawalReversals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payouts",
			Name:      "reversals_total",
			Help:      "Withdrawal debits restored after a failed payout, by cause.",
		},
		[]string{"cause"},
	)

	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Open notification connections.",
		},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "notifications_total",
			Help:      "Notifications by type and delivery result.",
		},
		[]string{"type", "result"},
	)

	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "circuitbreaker",
			Name:      "state_transitions_total",
			Help:      "Circuit breaker state transitions by key.",
		},
		[]string{"key", "from_state", "to_state"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		LedgerEntriesTotal,
		LedgerWriteConflicts,
		LedgerDuplicateClaims,
		WalletsCreated,
		ResolverLookups,
		PaymentCompletions,
		PayoutsTotal,
		PayoutDuration,
		WithdrawalReversals,
		WebsocketConnections,
		NotificationsTotal,
		BreakerTransitions,
	)
}

// ObservePayout records one gateway call.
func ObservePayout(provider, operation, result string, started time.Time) {
	PayoutsTotal.WithLabelValues(provider, operation, result).Inc()
	PayoutDuration.WithLabelValues(provider, operation).Observe(time.Since(started).Seconds())
}

// TrackBreaker exports the breaker's state changes.
func TrackBreaker(b *circuitbreaker.Breaker) {
	b.OnTransition(func(key string, from, to circuitbreaker.State) {
		BreakerTransitions.WithLabelValues(key, from.String(), to.String()).Inc()
	})
}

// Middleware records request count and latency per route.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := c.Request().Method

			HTTPRequestsTotal.WithLabelValues(method, path, statusBucket(status)).Inc()
			HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

func statusBucket(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
