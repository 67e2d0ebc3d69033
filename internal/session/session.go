package session

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	// SessionName is the name of the session cookie
	SessionName = "alyana_session"

	// CredentialKey is the session key holding the signed credential
	CredentialKey = "credential"
)

// Manager wraps gorilla/sessions for credential transport. The cookie only
// carries the signed credential string; the credential itself is the source
// of truth, so there is no server-side session store to keep consistent.
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a new session manager
// secretKey should be 32 bytes
func NewManager(secretKey []byte) *Manager {
	store := sessions.NewCookieStore(secretKey)

	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60, // bounded by the credential lifetime anyway
		HttpOnly: true,
		Secure:   false, // set true behind HTTPS termination
		SameSite: http.SameSiteLaxMode,
	}

	return &Manager{
		store: store,
	}
}

// SetCredential stores the signed credential in the session cookie
func (m *Manager) SetCredential(r *http.Request, w http.ResponseWriter, credential string) error {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		// Create new session if the existing cookie cannot be decoded
		session, _ = m.store.New(r, SessionName)
	}

	session.Values[CredentialKey] = credential
	return session.Save(r, w)
}

// GetCredential retrieves the signed credential from the session cookie
func (m *Manager) GetCredential(r *http.Request) (string, error) {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return "", err
	}

	credential, ok := session.Values[CredentialKey].(string)
	if !ok {
		return "", http.ErrNoCookie
	}

	return credential, nil
}

// Clear removes the session cookie (logout)
func (m *Manager) Clear(r *http.Request, w http.ResponseWriter) error {
	session, err := m.store.Get(r, SessionName)
	if err != nil {
		return nil // nothing to clear
	}

	// Set MaxAge to -1 to delete the session
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
