package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alyanaluz/gatekeeper/internal/auth"
	"github.com/alyanaluz/gatekeeper/internal/domain/services"
	"github.com/alyanaluz/gatekeeper/internal/pkg/metrics"
	"github.com/alyanaluz/gatekeeper/internal/session"
)

// AccessGate enforces subscription-gated access on every protected request:
// no/invalid credential is 401, a verified identity without an entitled
// status is 402, otherwise the handler runs with the identity in the
// request context. The gate performs a fresh sync on each request (not a
// naive cache read) so a just-lapsed subscription is caught within one
// request even before any webhook arrives.
type AccessGate struct {
	credentials *auth.CredentialManager
	sessions    *session.Manager
	reconciler  *services.Reconciler
	log         *slog.Logger
}

// NewAccessGate creates the gate middleware
func NewAccessGate(credentials *auth.CredentialManager, sessions *session.Manager, reconciler *services.Reconciler) *AccessGate {
	return &AccessGate{
		credentials: credentials,
		sessions:    sessions,
		reconciler:  reconciler,
		log:         slog.Default().With(slog.String("component", "access_gate")),
	}
}

// RequireEntitlement is the per-request state machine
func (g *AccessGate) RequireEntitlement(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := g.CredentialFromRequest(r)
		if credential == "" {
			metrics.RecordGateDecision("unauthenticated")
			writeGateError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		identity, err := g.credentials.Verify(credential)
		if err != nil {
			metrics.RecordGateDecision("unauthenticated")
			g.log.Debug("credential rejected", slog.String("error", err.Error()))
			writeGateError(w, http.StatusUnauthorized, "invalid or expired credential")
			return
		}

		status, err := g.reconciler.Sync(r.Context(), identity)
		if err != nil {
			g.log.Error("entitlement sync failed",
				slog.String("identity", identity),
				slog.String("error", err.Error()))
			writeGateError(w, http.StatusInternalServerError, "entitlement check failed")
			return
		}

		if !status.Entitled() {
			metrics.RecordGateDecision("not_entitled")
			writeGateError(w, http.StatusPaymentRequired, "an active subscription is required")
			return
		}

		metrics.RecordGateDecision("authorized")
		next.ServeHTTP(w, r.WithContext(auth.SetIdentityInContext(r.Context(), identity)))
	})
}

// CredentialFromRequest extracts the credential from the session cookie or
// an Authorization bearer header. Returns "" when neither is present.
func (g *AccessGate) CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	credential, err := g.sessions.GetCredential(r)
	if err != nil {
		return ""
	}
	return credential
}

func writeGateError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
