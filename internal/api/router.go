package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/alyanaluz/gatekeeper/internal/api/handlers"
	"github.com/alyanaluz/gatekeeper/internal/api/middleware"
)

// NewRouter wires the public endpoints, the webhook receiver, and the
// gated premium surface
func NewRouter(h *handlers.Handler, gate *middleware.AccessGate) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LogRequest)

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)

	// Session lifecycle
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	// Provider push path
	r.HandleFunc("/billing/webhook", h.BillingWebhook).Methods(http.MethodPost)

	// Everything under /api requires a verified, entitled identity
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(gate.RequireEntitlement)
	protected.HandleFunc("/entitlement", h.Entitlement).Methods(http.MethodGet)
	protected.HandleFunc("/billing/portal", h.BillingPortal).Methods(http.MethodPost)

	return r
}
