package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alyanaluz/gatekeeper/internal/auth"
	"github.com/alyanaluz/gatekeeper/internal/billing"
	"github.com/alyanaluz/gatekeeper/internal/domain/repositories"
	"github.com/alyanaluz/gatekeeper/internal/domain/services"
	"github.com/alyanaluz/gatekeeper/internal/session"
)

// maxBodyBytes bounds request and webhook payload sizes
const maxBodyBytes = 64 * 1024

// Handler holds the dependencies for all HTTP handlers
type Handler struct {
	reconciler      *services.Reconciler
	store           repositories.Entitlements
	credentials     *auth.CredentialManager
	sessions        *session.Manager
	provider        billing.Provider
	webhookSecret   string
	portalReturnURL string
	log             *slog.Logger
}

// New creates a new handler
func New(
	reconciler *services.Reconciler,
	store repositories.Entitlements,
	credentials *auth.CredentialManager,
	sessions *session.Manager,
	provider billing.Provider,
	webhookSecret string,
	portalReturnURL string,
) *Handler {
	return &Handler{
		reconciler:      reconciler,
		store:           store,
		credentials:     credentials,
		sessions:        sessions,
		provider:        provider,
		webhookSecret:   webhookSecret,
		portalReturnURL: portalReturnURL,
		log:             slog.Default().With(slog.String("component", "handlers")),
	}
}

// Health is the liveness endpoint
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// respondJSON writes a JSON response with the given status code
func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// respondError writes a JSON error body
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
