package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/alyanaluz/gatekeeper/internal/billing"
	"github.com/alyanaluz/gatekeeper/internal/pkg/metrics"
)

// BillingWebhook ingests asynchronous provider events. This is the
// service's only externally-reachable trust boundary: the provider
// signature is verified before anything else, and a failed verification is
// rejected with no side effects. Unknown event types are accepted and
// ignored for forward compatibility. Processing is synchronous; the
// provider's own retry policy covers transient failures.
func (h *Handler) BillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		h.respondError(w, http.StatusBadRequest, "could not read payload")
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "rejected")
		h.log.Warn("webhook signature verification failed",
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	eventType := billing.EventType(event.Type)
	if !eventType.Actionable() {
		metrics.RecordWebhookEvent(string(event.Type), "ignored")
		h.log.Debug("ignoring webhook event type",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)))
		h.respondJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	// Strict decode at the boundary: actionable events carry a
	// subscription object with a customer reference and a status.
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil || sub.Customer == nil || sub.Customer.ID == "" {
		metrics.RecordWebhookEvent(string(event.Type), "rejected")
		h.log.Warn("webhook event payload malformed",
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)))
		h.respondError(w, http.StatusBadRequest, "malformed event payload")
		return
	}

	status := billing.MapSubscriptionStatus(string(sub.Status))
	if eventType == billing.EventSubscriptionDeleted {
		// A deleted subscription is canceled regardless of its last state
		status = billing.MapSubscriptionStatus("canceled")
	}

	domainEvent := &billing.Event{
		ID:         event.ID,
		Type:       eventType,
		AccountRef: sub.Customer.ID,
		Status:     status,
		Detail:     "webhook " + string(event.Type),
	}

	if err := h.reconciler.ApplyEvent(r.Context(), domainEvent); err != nil {
		metrics.RecordWebhookEvent(string(event.Type), "deferred")
		h.log.Error("failed to apply webhook event",
			slog.String("event_id", event.ID),
			slog.String("error", err.Error()))
		// Non-200 so the provider redelivers
		h.respondError(w, http.StatusInternalServerError, "event processing failed")
		return
	}

	metrics.RecordWebhookEvent(string(event.Type), "applied")
	h.respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
