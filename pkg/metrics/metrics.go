// Package metrics provides Prometheus observability for the integration
// runtime: outbound HTTP traffic, retry/rate-limit behaviour, webhook
// ingestion, and sync throughput.
//
// Metrics are registered automatically via promauto and shared process-wide;
// components record through the exported collectors.
//
// Example:
//
//	timer := metrics.NewTimer()
//	resp, err := client.Get(ctx, path, nil)
//	metrics.OutboundRequests.WithLabelValues("hubspot", "GET", status(err)).Inc()
//	metrics.RequestLatency.WithLabelValues("hubspot").Observe(timer.Stop().Seconds())
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OutboundRequests counts outbound provider calls.
	// Labels: provider, method, outcome (success/retryable/fatal)
	OutboundRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tideway_outbound_requests_total",
			Help: "Total number of outbound provider requests",
		},
		[]string{"provider", "method", "outcome"},
	)

	// RequestLatency tracks the latency distribution of outbound calls.
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tideway_outbound_request_seconds",
			Help:    "Outbound request latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// Retries counts retry attempts per provider.
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tideway_request_retries_total",
			Help: "Total number of outbound request retries",
		},
		[]string{"provider"},
	)

	// RateLimitWait tracks time spent blocked in rate-limiter admission.
	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tideway_rate_limit_wait_seconds",
			Help:    "Time spent waiting for rate limiter admission",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	// CircuitState exposes the breaker state per provider (0 closed, 1 open).
	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tideway_circuit_open",
			Help: "Circuit breaker state per provider (1 = open)",
		},
		[]string{"provider"},
	)

	// WebhookEvents counts normalized inbound webhook events.
	// Labels: provider, outcome (accepted/dropped/invalid_signature)
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tideway_webhook_events_total",
			Help: "Total number of inbound webhook events by outcome",
		},
		[]string{"provider", "outcome"},
	)

	// SyncRecords counts records returned by backfill/delta runs.
	// Labels: provider, mode (backfill/delta), status (success/failure)
	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tideway_sync_records_total",
			Help: "Total number of records processed by sync runs",
		},
		[]string{"provider", "mode", "status"},
	)

	// TokenRefreshes counts refresh attempts per provider.
	// Labels: provider, status (success/failure)
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tideway_token_refreshes_total",
			Help: "Total number of OAuth token refresh attempts",
		},
		[]string{"provider", "status"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since the timer was created. The timer
// can be stopped multiple times, each returning the total elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
