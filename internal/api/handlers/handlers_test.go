package handlers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stripe/stripe-go/v79"

	"github.com/alyanaluz/gatekeeper/internal/api"
	"github.com/alyanaluz/gatekeeper/internal/api/handlers"
	"github.com/alyanaluz/gatekeeper/internal/api/middleware"
	"github.com/alyanaluz/gatekeeper/internal/auth"
	"github.com/alyanaluz/gatekeeper/internal/billing"
	"github.com/alyanaluz/gatekeeper/internal/domain/entities"
	"github.com/alyanaluz/gatekeeper/internal/domain/repositories"
	"github.com/alyanaluz/gatekeeper/internal/domain/services"
	"github.com/alyanaluz/gatekeeper/internal/session"
)

const (
	testSigningSecret = "0123456789abcdef0123456789abcdef"
	testWebhookSecret = "whsec_test_secret"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string]*entities.EntitlementRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*entities.EntitlementRecord)}
}

func (s *fakeStore) Upsert(ctx context.Context, record *entities.EntitlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	copied.UpdatedAt = time.Now()
	s.records[record.Identity] = &copied
	return nil
}

func (s *fakeStore) Get(ctx context.Context, identity string) (*entities.EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[identity]
	if !ok {
		return nil, repositories.ErrEntitlementNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *fakeStore) GetByAccountRef(ctx context.Context, accountRef string) (*entities.EntitlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.BillingAccountRef == accountRef {
			copied := *record
			return &copied, nil
		}
	}
	return nil, repositories.ErrEntitlementNotFound
}

func (s *fakeStore) seed(record *entities.EntitlementRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *record
	if copied.UpdatedAt.IsZero() {
		copied.UpdatedAt = time.Now()
	}
	s.records[record.Identity] = &copied
}

type fakeProvider struct {
	accounts   map[string]billing.AccountResult
	statuses   map[string]billing.StatusResult
	identities map[string]billing.AccountResult
	portalURL  string
}

func (p *fakeProvider) FindAccount(ctx context.Context, identity string) billing.AccountResult {
	if res, ok := p.accounts[identity]; ok {
		return res
	}
	return billing.AccountResult{Outcome: billing.OutcomeNotFound}
}

func (p *fakeProvider) CurrentStatus(ctx context.Context, accountRef string) billing.StatusResult {
	if res, ok := p.statuses[accountRef]; ok {
		return res
	}
	return billing.StatusResult{Outcome: billing.OutcomeNotFound}
}

func (p *fakeProvider) AccountIdentity(ctx context.Context, accountRef string) billing.AccountResult {
	if res, ok := p.identities[accountRef]; ok {
		return res
	}
	return billing.AccountResult{Outcome: billing.OutcomeNotFound}
}

func (p *fakeProvider) PortalURL(ctx context.Context, accountRef, returnURL string) (string, error) {
	if p.portalURL == "" {
		return "", fmt.Errorf("portal unavailable")
	}
	return p.portalURL, nil
}

type testServer struct {
	router      *mux.Router
	store       *fakeStore
	provider    *fakeProvider
	credentials *auth.CredentialManager
}

func newTestServer(t *testing.T, provider *fakeProvider) *testServer {
	t.Helper()

	store := newFakeStore()
	reconciler := services.NewReconciler(store, provider)
	credentials, err := auth.NewCredentialManager([]byte(testSigningSecret), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to create credential manager: %v", err)
	}
	sessions := session.NewManager([]byte(testSigningSecret))

	h := handlers.New(reconciler, store, credentials, sessions, provider,
		testWebhookSecret, "https://app.example.com/account")
	gate := middleware.NewAccessGate(credentials, sessions, reconciler)

	return &testServer{
		router:      api.NewRouter(h, gate),
		store:       store,
		provider:    provider,
		credentials: credentials,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return body
}

// signWebhookPayload builds a Stripe-Signature header for a payload
func signWebhookPayload(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// subscriptionEventPayload builds a signed webhook request body for a
// subscription event
func subscriptionEventPayload(eventID, eventType, accountRef, subStatus string) []byte {
	object := fmt.Sprintf(`{"id":"sub_1","customer":%q,"status":%q}`, accountRef, subStatus)
	payload := fmt.Sprintf(`{"id":%q,"type":%q,"api_version":%q,"data":{"object":%s}}`,
		eventID, eventType, stripe.APIVersion, object)
	return []byte(payload)
}

func postWebhook(ts *testServer, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(string(payload)))
	req.Header.Set("Stripe-Signature", signature)
	return ts.do(req)
}

func login(t *testing.T, ts *testServer, identity string) []*http.Cookie {
	t.Helper()
	body := fmt.Sprintf(`{"identity":%q}`, identity)
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Login failed with status %d: %s", rec.Code, rec.Body.String())
	}
	return rec.Result().Cookies()
}

func TestLoginWithoutAccountIsRejected(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"identity":"nobody@example.com"}`))
	rec := ts.do(req)

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402, got %d: %s", rec.Code, rec.Body.String())
	}

	// Repeat attempts hit the persisted negative record, same answer
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"identity":"nobody@example.com"}`))
	if rec := ts.do(req); rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402 on retry, got %d", rec.Code)
	}
}

func TestLoginInvalidIdentity(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	for _, body := range []string{`{"identity":"not-an-email"}`, `{"identity":""}`, `{broken`} {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body))
		if rec := ts.do(req); rec.Code != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestLoginThenCancellationPropagates(t *testing.T) {
	provider := &fakeProvider{
		accounts: map[string]billing.AccountResult{
			"user@example.com": {Outcome: billing.OutcomeFound, AccountRef: "cus_123"},
		},
		statuses: map[string]billing.StatusResult{
			"cus_123": {Outcome: billing.OutcomeFound, Status: entities.StatusActive},
		},
	}
	ts := newTestServer(t, provider)

	cookies := login(t, ts, "User@Example.COM")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /me, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["authenticated"] != true || body["entitled"] != true {
		t.Fatalf("Expected authenticated and entitled, got %v", body)
	}
	if body["identity"] != "user@example.com" {
		t.Errorf("Expected normalized identity, got %v", body["identity"])
	}

	// The provider cancels the subscription and pushes a webhook
	provider.statuses["cus_123"] = billing.StatusResult{
		Outcome: billing.OutcomeFound,
		Status:  entities.StatusCanceled,
	}
	payload := subscriptionEventPayload("evt_1", "customer.subscription.deleted", "cus_123", "canceled")
	sig := signWebhookPayload(payload, testWebhookSecret, time.Now())
	if rec := postWebhook(ts, payload, sig); rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from webhook, got %d: %s", rec.Code, rec.Body.String())
	}

	// The still-valid credential no longer grants entitlement
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = ts.do(req)
	body = decodeBody(t, rec)
	if body["entitled"] != false {
		t.Fatalf("Expected entitled false after cancellation, got %v", body)
	}

	// And the gate refuses premium access
	req = httptest.NewRequest(http.MethodGet, "/api/entitlement", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	if rec := ts.do(req); rec.Code != http.StatusPaymentRequired {
		t.Fatalf("Expected 402 from gate, got %d", rec.Code)
	}
}

func TestGateRejectsExpiredCredential(t *testing.T) {
	provider := &fakeProvider{
		statuses: map[string]billing.StatusResult{
			"cus_123": {Outcome: billing.OutcomeFound, Status: entities.StatusActive},
		},
	}
	ts := newTestServer(t, provider)
	ts.store.seed(&entities.EntitlementRecord{
		Identity:          "user@example.com",
		BillingAccountRef: "cus_123",
		Status:            entities.StatusActive,
	})

	// An active entitlement record does not rescue an expired credential
	shortLived, err := auth.NewCredentialManager([]byte(testSigningSecret), time.Nanosecond)
	if err != nil {
		t.Fatalf("Failed to create credential manager: %v", err)
	}
	credential, _, err := shortLived.Issue("user@example.com")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/entitlement", nil)
	req.Header.Set("Authorization", "Bearer "+credential)
	if rec := ts.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for expired credential, got %d", rec.Code)
	}
}

func TestGateRejectsMissingCredential(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/entitlement", nil)
	if rec := ts.do(req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without credential, got %d", rec.Code)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	ts.store.seed(&entities.EntitlementRecord{
		Identity:          "user@example.com",
		BillingAccountRef: "cus_123",
		Status:            entities.StatusActive,
	})

	payload := subscriptionEventPayload("evt_1", "customer.subscription.deleted", "cus_123", "canceled")

	// Signed with the wrong secret
	sig := signWebhookPayload(payload, "whsec_wrong", time.Now())
	if rec := postWebhook(ts, payload, sig); rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for bad signature, got %d", rec.Code)
	}

	// Missing header entirely
	if rec := postWebhook(ts, payload, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for missing signature, got %d", rec.Code)
	}

	// Rejection has no side effects
	record, err := ts.store.Get(context.Background(), "user@example.com")
	if err != nil {
		t.Fatalf("Expected record intact: %v", err)
	}
	if record.Status != entities.StatusActive {
		t.Fatalf("Expected record untouched, got %q", record.Status)
	}
}

func TestWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})
	ts.store.seed(&entities.EntitlementRecord{
		Identity:          "user@example.com",
		BillingAccountRef: "cus_123",
		Status:            entities.StatusActive,
	})

	payload := subscriptionEventPayload("evt_1", "customer.subscription.updated", "cus_123", "past_due")
	for i := 0; i < 3; i++ {
		sig := signWebhookPayload(payload, testWebhookSecret, time.Now())
		if rec := postWebhook(ts, payload, sig); rec.Code != http.StatusOK {
			t.Fatalf("Delivery %d: expected 200, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	record, _ := ts.store.Get(context.Background(), "user@example.com")
	if record.Status != entities.StatusPastDue {
		t.Fatalf("Expected past_due, got %q", record.Status)
	}
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"invoice.paid","api_version":%q,"data":{"object":{}}}`, stripe.APIVersion))
	sig := signWebhookPayload(payload, testWebhookSecret, time.Now())
	rec := postWebhook(ts, payload, sig)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for ignored event, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGateServesCachedStatusWhenProviderDown(t *testing.T) {
	provider := &fakeProvider{
		statuses: map[string]billing.StatusResult{
			"cus_123": {Outcome: billing.OutcomeUnavailable, Reason: "timeout"},
		},
	}
	ts := newTestServer(t, provider)
	ts.store.seed(&entities.EntitlementRecord{
		Identity:          "user@example.com",
		BillingAccountRef: "cus_123",
		Status:            entities.StatusActive,
		UpdatedAt:         time.Now().Add(-time.Hour),
	})

	credential, _, err := ts.credentials.Issue("user@example.com")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/entitlement", nil)
	req.Header.Set("Authorization", "Bearer "+credential)
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from cached fallback, got %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["status"] != "active" {
		t.Errorf("Expected cached active status, got %v", body["status"])
	}
}

func TestBillingPortal(t *testing.T) {
	provider := &fakeProvider{
		statuses: map[string]billing.StatusResult{
			"cus_123": {Outcome: billing.OutcomeFound, Status: entities.StatusActive},
		},
		portalURL: "https://billing.stripe.com/p/session_abc",
	}
	ts := newTestServer(t, provider)
	ts.store.seed(&entities.EntitlementRecord{
		Identity:          "user@example.com",
		BillingAccountRef: "cus_123",
		Status:            entities.StatusActive,
	})

	credential, _, err := ts.credentials.Issue("user@example.com")
	if err != nil {
		t.Fatalf("Failed to issue credential: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/billing/portal", nil)
	req.Header.Set("Authorization", "Bearer "+credential)
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["url"] != "https://billing.stripe.com/p/session_abc" {
		t.Errorf("Expected portal URL, got %v", body["url"])
	}
}

func TestLogoutClearsSession(t *testing.T) {
	provider := &fakeProvider{
		accounts: map[string]billing.AccountResult{
			"user@example.com": {Outcome: billing.OutcomeFound, AccountRef: "cus_123"},
		},
		statuses: map[string]billing.StatusResult{
			"cus_123": {Outcome: billing.OutcomeFound, Status: entities.StatusActive},
		},
	}
	ts := newTestServer(t, provider)

	cookies := login(t, ts, "user@example.com")

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from logout, got %d", rec.Code)
	}

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.SessionName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("Expected the session cookie to be expired")
	}
}

func TestMeUnauthenticated(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /me, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["authenticated"] != false {
		t.Fatalf("Expected authenticated false, got %v", body)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeProvider{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := ts.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /health, got %d", rec.Code)
	}
}
