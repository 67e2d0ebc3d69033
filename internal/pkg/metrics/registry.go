package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gatekeeper_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gatekeeper_db_rows_affected",
			Help:                            "Number of rows affected by database write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_db_errors_total",
			Help: "Total database errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)
)

// Billing Provider Metrics
var (
	// ProviderCalls tracks calls to the billing provider by operation and
	// outcome (found, not_found, unavailable)
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_provider_calls_total",
			Help: "Total billing provider calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// ProviderDuration tracks billing provider round-trip latency
	ProviderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gatekeeper_provider_call_duration_ms",
			Help:                            "Billing provider call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"operation"},
	)
)

// Reconciliation Metrics
var (
	// SyncFallbacks counts pulls that served a stale cached status because
	// the billing provider was unreachable
	SyncFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_sync_cache_fallbacks_total",
			Help: "Total syncs answered from the cached entitlement record due to provider unavailability",
		},
	)

	// WebhookEvents tracks inbound billing webhook events by type and result
	// (applied, ignored, rejected)
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_webhook_events_total",
			Help: "Total billing webhook events by event type and result",
		},
		[]string{"event_type", "result"},
	)
)

// Access Gate Metrics
var (
	// GateDecisions tracks per-request gate outcomes
	// (authorized, unauthenticated, not_entitled)
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_gate_decisions_total",
			Help: "Total access gate decisions by outcome",
		},
		[]string{"decision"},
	)

	// CredentialsIssued counts credentials issued at login
	CredentialsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gatekeeper_credentials_issued_total",
			Help: "Total session credentials issued",
		},
	)
)

// HTTP Handler Metrics
var (
	// HTTPRequests tracks HTTP requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatekeeper_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration tracks HTTP request duration
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gatekeeper_http_request_duration_ms",
			Help:                            "HTTP request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "path"},
	)

	// HTTPActiveRequests tracks active HTTP requests
	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gatekeeper_http_active_requests",
			Help: "Number of active HTTP requests",
		},
	)
)
