package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suncrest/sungate/internal/api"
	"github.com/suncrest/sungate/internal/api/handler"
	mw "github.com/suncrest/sungate/internal/api/middleware"
	"github.com/suncrest/sungate/internal/audit"
	"github.com/suncrest/sungate/internal/auth"
	"github.com/suncrest/sungate/internal/ratelimit"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/internal/webhook"
	"github.com/suncrest/sungate/pkg/models"
)

// fakeStore is an in-memory Store with the same visible semantics as the
// Postgres implementation, minus durability.
type fakeStore struct {
	store.Store

	mu    sync.Mutex
	creds map[uuid.UUID]*models.Credential
	hooks map[uuid.UUID]*models.Webhook
	usage []*models.UsageLog
	deliv []*models.DeliveryLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		creds: make(map[uuid.UUID]*models.Credential),
		hooks: make(map[uuid.UUID]*models.Webhook),
	}
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) CreateCredential(_ context.Context, c *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.creds[c.ID] = &cp
	return nil
}

func (s *fakeStore) GetCredential(_ context.Context, id, ownerID uuid.UUID) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok || c.OwnerID != ownerID || c.Status == models.CredentialRevoked {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeStore) GetCredentialByHash(_ context.Context, hash string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.creds {
		if c.SecretHash == hash {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *fakeStore) ListCredentials(_ context.Context, ownerID uuid.UUID) ([]*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Credential
	for _, c := range s.creds {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateCredential(_ context.Context, id, ownerID uuid.UUID, update store.CredentialUpdate) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok || c.OwnerID != ownerID || c.Status == models.CredentialRevoked {
		return nil, store.ErrNotFound
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.Status != nil {
		c.Status = *update.Status
	}
	if update.Scopes != nil {
		c.Scopes = update.Scopes
	}
	if update.RateLimit != nil {
		c.RateLimit = *update.RateLimit
	}
	if update.AllowedIPs != nil {
		c.AllowedIPs = update.AllowedIPs
	}
	if update.ExpiresAt != nil {
		c.ExpiresAt = update.ExpiresAt
	}
	if update.ClearExpiresAt {
		c.ExpiresAt = nil
	}
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (s *fakeStore) RotateCredentialSecret(_ context.Context, id, ownerID uuid.UUID, newHash, newPrefix string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok || c.OwnerID != ownerID || c.Status == models.CredentialRevoked {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	c.SecretHash = newHash
	c.DisplayPrefix = newPrefix
	c.RotatedAt = &now
	c.UpdatedAt = now
	cp := *c
	return &cp, nil
}

func (s *fakeStore) RevokeCredential(_ context.Context, id, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok || c.OwnerID != ownerID || c.Status == models.CredentialRevoked {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	c.Status = models.CredentialRevoked
	c.RevokedAt = &now
	return nil
}

func (s *fakeStore) ConsumeQuota(_ context.Context, id uuid.UUID, clientIP string, now time.Time) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if c.Status == models.CredentialActive && c.Expired(now) {
		c.Status = models.CredentialExpired
	}
	if c.Status != models.CredentialActive {
		return nil, &store.NotActiveError{Status: c.Status}
	}
	d := ratelimit.Evaluate(c.Usage, c.RateLimit, now)
	if !d.Allowed {
		return nil, &store.QuotaError{Window: d.Violated}
	}
	c.Usage = d.Usage
	c.LastUsedIP = clientIP
	cp := *c
	return &cp, nil
}

func (s *fakeStore) CreateWebhook(_ context.Context, w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.hooks[w.ID] = &cp
	return nil
}

func (s *fakeStore) GetWebhook(_ context.Context, id, ownerID uuid.UUID) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.hooks[id]
	if !ok || w.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *fakeStore) ListWebhooks(_ context.Context, ownerID uuid.UUID) ([]*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Webhook
	for _, w := range s.hooks {
		if w.OwnerID == ownerID {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) ListActiveWebhooksForEvent(_ context.Context, event models.EventType) ([]*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Webhook
	for _, w := range s.hooks {
		if w.Status == models.WebhookActive && w.SubscribedTo(event) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateWebhook(_ context.Context, id, ownerID uuid.UUID, update store.WebhookUpdate) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.hooks[id]
	if !ok || w.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	if update.URL != nil {
		w.URL = *update.URL
	}
	if update.Events != nil {
		w.Events = update.Events
	}
	if update.Status != nil {
		w.Status = *update.Status
		if *update.Status == models.WebhookActive {
			w.FailureCount = 0
		}
	}
	w.UpdatedAt = time.Now().UTC()
	cp := *w
	return &cp, nil
}

func (s *fakeStore) DeleteWebhook(_ context.Context, id, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.hooks[id]
	if !ok || w.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.hooks, id)
	return nil
}

func (s *fakeStore) RecordDeliverySuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.hooks[id]; ok {
		w.FailureCount = 0
		w.LastDeliveredAt = &at
	}
	return nil
}

func (s *fakeStore) RecordDeliveryFailure(_ context.Context, id uuid.UUID) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.hooks[id]
	if !ok {
		return 0, false, store.ErrNotFound
	}
	w.FailureCount++
	if w.FailureCount >= models.FailureThreshold && w.Status == models.WebhookActive {
		w.Status = models.WebhookFailed
		return w.FailureCount, true, nil
	}
	return w.FailureCount, false, nil
}

func (s *fakeStore) InsertUsageLog(_ context.Context, l *models.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, l)
	return nil
}

func (s *fakeStore) InsertDeliveryLog(_ context.Context, l *models.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliv = append(s.deliv, l)
	return nil
}

func (s *fakeStore) ListUsageLogs(_ context.Context, credentialID uuid.UUID, _ int) ([]*models.UsageLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.UsageLog
	for _, l := range s.usage {
		if l.CredentialID == credentialID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *fakeStore) ListDeliveryLogs(_ context.Context, webhookID uuid.UUID, _ int) ([]*models.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DeliveryLog
	for _, l := range s.deliv {
		if l.WebhookID == webhookID {
			out = append(out, l)
		}
	}
	return out, nil
}

// nopCache drops everything, forcing dispatcher lookups to the store.
type nopCache struct{}

func (nopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nopCache) Get(context.Context, string) ([]byte, bool, error)       { return nil, false, nil }
func (nopCache) Delete(context.Context, string) error                    { return nil }
func (nopCache) Ping(context.Context) error                              { return nil }

type fixture struct {
	router     http.Handler
	store      *fakeStore
	dispatcher *webhook.Dispatcher
	logger     *audit.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := newFakeStore()
	logger := audit.NewLogger(st, 64)
	t.Cleanup(logger.Close)

	authenticator := auth.NewAuthenticator(st)
	registry := webhook.NewRegistry(st, nopCache{})
	dispatcher := webhook.NewDispatcher(st, nopCache{}, logger, 2*time.Second, time.Minute)
	t.Cleanup(dispatcher.Close)

	router := api.NewRouter(api.Dependencies{
		Auth:         mw.NewAuth(authenticator, logger),
		Health:       handler.NewHealth(st, nopCache{}),
		Credentials:  handler.NewCredentials(st),
		Webhooks:     handler.NewWebhooks(registry, dispatcher),
		EventTrigger: handler.NewEventTrigger(dispatcher),
	})
	return &fixture{router: router, store: st, dispatcher: dispatcher, logger: logger}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.RemoteAddr = "203.0.113.7:5000"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func ownerHeader(ownerID uuid.UUID) map[string]string {
	return map[string]string{mw.HeaderOwnerID: ownerID.String()}
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func (f *fixture) createKey(t *testing.T, ownerID uuid.UUID, scopes []string) (uuid.UUID, string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/keys", map[string]any{
		"name":   "service key",
		"scopes": scopes,
	}, ownerHeader(ownerID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID  uuid.UUID `json:"id"`
		Key string    `json:"key"`
	}
	decodeData(t, rec, &created)
	return created.ID, created.Key
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeData(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
}

func TestCreateKeyReturnsPlaintextOnce(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	id, key := f.createKey(t, ownerID, []string{models.ScopeWriteBids})

	assert.Regexp(t, `^sg_live_[0-9a-f]{48}$`, key)

	rec := f.do(t, http.MethodGet, "/api/v1/keys/"+id.String(), nil, ownerHeader(ownerID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), key)
	assert.Contains(t, rec.Body.String(), key[:16]+"...")
}

func TestCreateKeyValidation(t *testing.T) {
	f := newFixture(t)
	owner := ownerHeader(uuid.New())

	rec := f.do(t, http.MethodPost, "/api/v1/keys",
		map[string]any{"scopes": []string{models.ScopeReadBids}}, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/keys",
		map[string]any{"name": "k", "scopes": []string{"launch_missiles"}}, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "launch_missiles")

	rec = f.do(t, http.MethodPost, "/api/v1/keys",
		map[string]any{"name": "k", "scopes": []string{models.ScopeReadBids}, "environment": "staging"}, owner)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManagementRequiresOwnerPrincipal(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/keys", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetKeyWrongOwner(t *testing.T) {
	f := newFixture(t)
	id, _ := f.createKey(t, uuid.New(), []string{models.ScopeReadBids})

	rec := f.do(t, http.MethodGet, "/api/v1/keys/"+id.String(), nil, ownerHeader(uuid.New()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "NOT_FOUND")
}

func TestRevokeKeyStopsAuthentication(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	id, key := f.createKey(t, ownerID, []string{models.ScopeWriteBids})

	rec := f.do(t, http.MethodDelete, "/api/v1/keys/"+id.String(), nil, ownerHeader(ownerID))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/events",
		map[string]any{"event": "bid.placed", "data": map[string]any{}},
		map[string]string{"Authorization": "Bearer " + key})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/keys/"+id.String(), nil, ownerHeader(ownerID))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRotateKeySwapsSecret(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	id, oldKey := f.createKey(t, ownerID, []string{models.ScopeWriteBids})

	rec := f.do(t, http.MethodPost, "/api/v1/keys/"+id.String()+"/rotate", nil, ownerHeader(ownerID))
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated struct {
		ID  uuid.UUID `json:"id"`
		Key string    `json:"key"`
	}
	decodeData(t, rec, &rotated)
	assert.Equal(t, id, rotated.ID)
	assert.NotEqual(t, oldKey, rotated.Key)

	event := map[string]any{"event": "bid.placed", "data": map[string]any{}}
	rec = f.do(t, http.MethodPost, "/api/v1/events", event,
		map[string]string{"Authorization": "Bearer " + oldKey})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/events", event,
		map[string]string{"Authorization": "Bearer " + rotated.Key})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSuspendedKeyForbidden(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	id, key := f.createKey(t, ownerID, []string{models.ScopeWriteBids})

	rec := f.do(t, http.MethodPatch, "/api/v1/keys/"+id.String(),
		map[string]any{"status": "suspended"}, ownerHeader(ownerID))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/events",
		map[string]any{"event": "bid.placed", "data": map[string]any{}},
		map[string]string{"Authorization": "Bearer " + key})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidateKey(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	id, key := f.createKey(t, ownerID, []string{models.ScopeReadBids})

	rec := f.do(t, http.MethodPost, "/api/v1/keys/validate", map[string]any{"key": key}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var verdict struct {
		Valid  bool     `json:"valid"`
		Scopes []string `json:"scopes"`
	}
	decodeData(t, rec, &verdict)
	assert.True(t, verdict.Valid)
	assert.Equal(t, []string{models.ScopeReadBids}, verdict.Scopes)

	rec = f.do(t, http.MethodPost, "/api/v1/keys/validate",
		map[string]any{"key": "sg_live_000000000000000000000000000000000000000000000000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":false`)

	require.Equal(t, http.StatusNoContent,
		f.do(t, http.MethodDelete, "/api/v1/keys/"+id.String(), nil, ownerHeader(ownerID)).Code)
	rec = f.do(t, http.MethodPost, "/api/v1/keys/validate", map[string]any{"key": key}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"valid":false`)
}

func TestRateLimitedEventCall(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()

	rec := f.do(t, http.MethodPost, "/api/v1/keys", map[string]any{
		"name":       "tight key",
		"scopes":     []string{models.ScopeWriteBids},
		"rate_limit": models.RateLimit{PerMinute: 2, PerHour: 100, PerDay: 100, PerMonth: 100},
	}, ownerHeader(ownerID))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Key string `json:"key"`
	}
	decodeData(t, rec, &created)

	event := map[string]any{"event": "bid.placed", "data": map[string]any{}}
	hdr := map[string]string{"Authorization": "Bearer " + created.Key}

	for i := 0; i < 2; i++ {
		rec = f.do(t, http.MethodPost, "/api/v1/events", event, hdr)
		require.Equal(t, http.StatusAccepted, rec.Code, "request %d", i)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/events", event, hdr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "minute")
}

func TestWebhookLifecycleAndEventFanout(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()

	received := make(chan *http.Request, 1)
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// HTTPS-only applies to real registrations; point the stored row at the
	// test server directly.
	rec := f.do(t, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"url":    "https://example.com/hooks",
		"events": []string{"bid.placed"},
	}, ownerHeader(ownerID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID     uuid.UUID `json:"id"`
		Secret string    `json:"secret"`
	}
	decodeData(t, rec, &created)
	require.Regexp(t, `^whsec_[0-9a-f]{48}$`, created.Secret)

	f.store.mu.Lock()
	f.store.hooks[created.ID].URL = srv.URL
	f.store.mu.Unlock()

	rec = f.do(t, http.MethodGet, "/api/v1/webhooks", nil, ownerHeader(ownerID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), created.Secret)

	_, key := f.createKey(t, ownerID, []string{models.ScopeWriteBids})
	rec = f.do(t, http.MethodPost, "/api/v1/events",
		map[string]any{"event": "bid.placed", "data": map[string]any{"bid_id": "b-1"}},
		map[string]string{"Authorization": "Bearer " + key})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var scheduled struct {
		Scheduled int `json:"scheduled"`
	}
	decodeData(t, rec, &scheduled)
	assert.Equal(t, 1, scheduled.Scheduled)

	select {
	case r := <-received:
		assert.Equal(t, "bid.placed", r.Header.Get(webhook.HeaderEvent))
		assert.True(t, webhook.Verify(created.Secret, gotBody, r.Header.Get(webhook.HeaderSignature)))
	case <-time.After(3 * time.Second):
		t.Fatal("delivery never arrived")
	}
}

func TestWebhookManagementScope(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	_, key := f.createKey(t, ownerID, []string{models.ScopeManageWebhooks})
	hdr := map[string]string{"Authorization": "Bearer " + key}

	rec := f.do(t, http.MethodGet, "/api/v1/webhooks", nil, hdr)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"url":    "https://example.com/hooks",
		"events": []string{"task.completed"},
	}, hdr)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The dedicated scope does not open the key-management surface.
	rec = f.do(t, http.MethodGet, "/api/v1/keys", nil, hdr)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventRequiresFamilyScope(t *testing.T) {
	f := newFixture(t)
	_, key := f.createKey(t, uuid.New(), []string{models.ScopeWriteListings})

	rec := f.do(t, http.MethodPost, "/api/v1/events",
		map[string]any{"event": "bid.placed", "data": map[string]any{}},
		map[string]string{"Authorization": "Bearer " + key})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ScopeWriteBids)
}

func TestEventUnknownType(t *testing.T) {
	f := newFixture(t)
	_, key := f.createKey(t, uuid.New(), []string{models.ScopeAdmin})

	rec := f.do(t, http.MethodPost, "/api/v1/events",
		map[string]any{"event": "comet.sighted", "data": map[string]any{}},
		map[string]string{"Authorization": "Bearer " + key})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookTestEndpoint(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := f.do(t, http.MethodPost, "/api/v1/webhooks", map[string]any{
		"url":    "https://example.com/hooks",
		"events": []string{"lead.created"},
	}, ownerHeader(ownerID))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	decodeData(t, rec, &created)

	f.store.mu.Lock()
	f.store.hooks[created.ID].URL = srv.URL
	f.store.mu.Unlock()

	rec = f.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/webhooks/%s/test", created.ID),
		map[string]any{"event": "lead.created"}, ownerHeader(ownerID))
	require.Equal(t, http.StatusOK, rec.Code)

	var log models.DeliveryLog
	decodeData(t, rec, &log)
	assert.True(t, log.Success)
	assert.Equal(t, http.StatusOK, log.StatusCode)

	// The body is optional; omitting it falls back to the default event.
	rec = f.do(t, http.MethodPost,
		fmt.Sprintf("/api/v1/webhooks/%s/test", created.ID), nil, ownerHeader(ownerID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &log)
	assert.Equal(t, models.EventProjectCreated, log.Event)
}

func TestUsageEndpointReflectsTraffic(t *testing.T) {
	f := newFixture(t)
	ownerID := uuid.New()
	id, key := f.createKey(t, ownerID, []string{models.ScopeWriteBids})

	event := map[string]any{"event": "bid.placed", "data": map[string]any{}}
	hdr := map[string]string{"Authorization": "Bearer " + key}
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusAccepted,
			f.do(t, http.MethodPost, "/api/v1/events", event, hdr).Code)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/keys/"+id.String()+"/usage", nil, ownerHeader(ownerID))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Usage models.Usage `json:"usage"`
	}
	decodeData(t, rec, &body)
	assert.Equal(t, int64(3), body.Usage.TotalRequests)
	assert.Equal(t, 3, body.Usage.Minute)
}
