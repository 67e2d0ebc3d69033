package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alyanaluz/gatekeeper/internal/auth"
	"github.com/alyanaluz/gatekeeper/internal/domain/repositories"
)

// Entitlement returns the caller's entitlement record. Read-only: the
// reconciler owns all writes, endpoint code only consumes.
func (h *Handler) Entitlement(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	record, err := h.store.Get(r.Context(), identity)
	if err != nil {
		if errors.Is(err, repositories.ErrEntitlementNotFound) {
			// The gate just synced, so this only happens if the store
			// write raced a failure; report it rather than fabricate
			h.respondError(w, http.StatusNotFound, "no entitlement record")
			return
		}
		h.log.Error("failed to load entitlement record",
			slog.String("identity", identity),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "failed to load entitlement")
		return
	}

	h.respondJSON(w, http.StatusOK, record)
}

type portalResponse struct {
	URL string `json:"url"`
}

// BillingPortal creates a provider self-service portal session so the
// caller can manage their subscription, returning the redirect URL.
func (h *Handler) BillingPortal(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	record, err := h.store.Get(r.Context(), identity)
	if err != nil || record.BillingAccountRef == "" {
		h.respondError(w, http.StatusNotFound, "no billing account on file")
		return
	}

	url, err := h.provider.PortalURL(r.Context(), record.BillingAccountRef, h.portalReturnURL)
	if err != nil {
		h.log.Error("failed to create billing portal session",
			slog.String("identity", identity),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusBadGateway, "billing portal unavailable")
		return
	}

	h.respondJSON(w, http.StatusOK, portalResponse{URL: url})
}
