// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_order_operations_total",
			Help: "Order operations by outcome",
		},
		[]string{"operation", "status"},
	)

	duplicateRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pos_order_duplicate_retries_total",
			Help: "Order commits retried after a duplicate key conflict",
		},
	)

	settlementRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_settlement_rejections_total",
			Help: "Rejected tenders by reason",
		},
		[]string{"reason"},
	)

	resourceContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_resource_contention_total",
			Help: "Resource selections that lost to another terminal or found the resource taken",
		},
		[]string{"outcome"},
	)

	rateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_rate_limited_total",
			Help: "Requests rejected by the per-terminal limiter",
		},
		[]string{"strategy"},
	)

	lookupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_external_lookup_failures_total",
			Help: "External lookups that degraded to defaults",
		},
		[]string{"source"},
	)
)

// RecordOrderOperation counts an order operation as success or error.
func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func RecordDuplicateRetry() { duplicateRetries.Inc() }

func RecordSettlementRejection(reason string) { settlementRejections.WithLabelValues(reason).Inc() }

func RecordContention(outcome string) { resourceContention.WithLabelValues(outcome).Inc() }

func RecordLookupFailure(source string) { lookupFailures.WithLabelValues(source).Inc() }

func RecordRateLimited(strategy string) { rateLimited.WithLabelValues(strategy).Inc() }
