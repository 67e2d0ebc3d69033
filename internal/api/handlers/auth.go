package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
	"github.com/alyanaluz/gatekeeper/internal/pkg/metrics"
)

type loginRequest struct {
	Identity string `json:"identity"`
}

type loginResponse struct {
	Identity string `json:"identity"`
	Entitled bool   `json:"entitled"`
}

type meResponse struct {
	Authenticated bool             `json:"authenticated"`
	Identity      string           `json:"identity,omitempty"`
	Entitled      *bool            `json:"entitled,omitempty"`
	Status        entities.Status  `json:"status,omitempty"`
}

// Login verifies that an identity currently holds a qualifying subscription
// and, if so, issues a signed session credential. Identity ownership is
// asserted by the caller; holding an active billing grant is the bar for
// issuing a credential.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity := entities.NormalizeIdentity(req.Identity)
	if !entities.ValidIdentity(identity) {
		h.respondError(w, http.StatusBadRequest, "invalid identity")
		return
	}

	status, err := h.reconciler.Sync(r.Context(), identity)
	if err != nil {
		h.log.Error("login sync failed",
			slog.String("identity", identity),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "entitlement check failed")
		return
	}

	if !status.Entitled() {
		h.respondError(w, http.StatusPaymentRequired, "no active subscription for this identity")
		return
	}

	credential, expiresAt, err := h.credentials.Issue(identity)
	if err != nil {
		h.log.Error("credential issue failed",
			slog.String("identity", identity),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "failed to issue credential")
		return
	}

	if err := h.sessions.SetCredential(r, w, credential); err != nil {
		h.log.Error("failed to set session cookie",
			slog.String("identity", identity),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	metrics.CredentialsIssued.Inc()
	h.log.Info("credential issued",
		slog.String("identity", identity),
		slog.Time("expires_at", expiresAt))

	h.respondJSON(w, http.StatusOK, loginResponse{Identity: identity, Entitled: true})
}

// Me reports the session state. It never errors on a missing or invalid
// credential: an unauthenticated caller just reads authenticated:false.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	credential := h.credentialFromRequest(r)
	if credential == "" {
		h.respondJSON(w, http.StatusOK, meResponse{Authenticated: false})
		return
	}

	identity, err := h.credentials.Verify(credential)
	if err != nil {
		h.respondJSON(w, http.StatusOK, meResponse{Authenticated: false})
		return
	}

	status, err := h.reconciler.Sync(r.Context(), identity)
	if err != nil {
		h.log.Error("me sync failed",
			slog.String("identity", identity),
			slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "entitlement check failed")
		return
	}

	entitled := status.Entitled()
	h.respondJSON(w, http.StatusOK, meResponse{
		Authenticated: true,
		Identity:      identity,
		Entitled:      &entitled,
		Status:        status,
	})
}

// Logout clears the session cookie. Always 200: the credential itself
// stays valid until expiry (bearer token, no revocation list), but the
// browser forgets it.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r, w); err != nil {
		h.log.Warn("failed to clear session", slog.String("error", err.Error()))
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// credentialFromRequest extracts the credential from the Authorization
// bearer header or the session cookie
func (h *Handler) credentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	credential, err := h.sessions.GetCredential(r)
	if err != nil {
		return ""
	}
	return credential
}
