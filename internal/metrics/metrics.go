package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status_code"},
	)

	// Database metrics
	dbConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_in_use",
			Help: "Number of database connections currently in use",
		},
	)

	dbConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	// Business metrics
	investmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_investments_total",
			Help: "Investment attempts by outcome",
		},
		[]string{"outcome"}, // admitted, or the rejection code
	)

	poolTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_transitions_total",
			Help: "Pool lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	concurrencyConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_concurrency_conflicts_total",
			Help: "Version-guarded writes that lost a race",
		},
		[]string{"operation"},
	)

	distributionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributions_created_total",
			Help: "Distributions created by type",
		},
		[]string{"type"},
	)

	payoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distribution_payouts_total",
			Help: "Payout disbursement attempts by outcome",
		},
		[]string{"outcome"}, // completed, failed
	)

	payoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "distribution_payout_duration_seconds",
			Help:    "Time spent disbursing a single payout",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// GinMiddleware records request count and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		statusCode := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, statusCode).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint, statusCode).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordInvestment(outcome string) {
	investmentsTotal.WithLabelValues(outcome).Inc()
}

func RecordPoolTransition(from, to string) {
	poolTransitionsTotal.WithLabelValues(from, to).Inc()
}

func RecordConcurrencyConflict(operation string) {
	concurrencyConflictsTotal.WithLabelValues(operation).Inc()
}

func RecordDistributionCreated(distributionType string) {
	distributionsCreatedTotal.WithLabelValues(distributionType).Inc()
}

func RecordPayout(success bool, duration time.Duration) {
	outcome := "failed"
	if success {
		outcome = "completed"
	}
	payoutsTotal.WithLabelValues(outcome).Inc()
	payoutDuration.Observe(duration.Seconds())
}

// UpdateDBConnections updates database connection metrics
func UpdateDBConnections(inUse, idle int) {
	dbConnectionsInUse.Set(float64(inUse))
	dbConnectionsIdle.Set(float64(idle))
}
