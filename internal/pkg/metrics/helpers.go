package metrics

import (
	"strings"
	"time"
)

// RecordDBOperation records database operation metrics consistently
// repo: repository name (e.g., "entitlement")
// operation: operation name (e.g., "upsert", "get", "get_by_account_ref")
// duration: time taken for the operation
// rowsAffected: number of rows affected/returned (-1 if not applicable)
// err: error from the operation (nil if successful)
func RecordDBOperation(repo, operation string, duration time.Duration, rowsAffected int64, err error) {
	ms := float64(duration.Milliseconds())
	DBDuration.WithLabelValues(repo, operation).Observe(ms)

	if rowsAffected >= 0 {
		DBRowsAffected.WithLabelValues(repo, operation).Observe(float64(rowsAffected))
	}

	status := "success"
	if err != nil {
		status = "error"
		DBErrors.WithLabelValues(repo, operation, classifyDBError(err)).Inc()
	}
	DBOperations.WithLabelValues(repo, operation, status).Inc()
}

// RecordProviderCall records a billing provider round trip
// operation: provider operation ("find_account", "current_status", ...)
// outcome: tagged result ("found", "not_found", "unavailable")
func RecordProviderCall(operation, outcome string, duration time.Duration) {
	ProviderDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
	ProviderCalls.WithLabelValues(operation, outcome).Inc()
}

// RecordWebhookEvent records an inbound billing webhook event
// result: "applied", "ignored", or "rejected"
func RecordWebhookEvent(eventType, result string) {
	WebhookEvents.WithLabelValues(eventType, result).Inc()
}

// RecordGateDecision records an access gate outcome
// decision: "authorized", "unauthenticated", or "not_entitled"
func RecordGateDecision(decision string) {
	GateDecisions.WithLabelValues(decision).Inc()
}

// classifyDBError categorizes database errors for metrics
func classifyDBError(err error) string {
	if err == nil {
		return "none"
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique constraint"):
		return "duplicate"
	case strings.Contains(errStr, "not found") || strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "connect"):
		return "connection"
	case strings.Contains(errStr, "constraint"):
		return "constraint"
	case strings.Contains(errStr, "deadlock"):
		return "deadlock"
	case strings.Contains(errStr, "syntax"):
		return "syntax"
	default:
		return "other"
	}
}
