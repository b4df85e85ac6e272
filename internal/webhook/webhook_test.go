package webhook_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/pkg/models"
)

// memCache is an in-process stand-in for the Redis subscriber cache.
// TTLs are honored on read.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	exp  map[string]time.Time
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte), exp: make(map[string]time.Time)}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	if ttl > 0 {
		c.exp[key] = time.Now().Add(ttl)
	} else {
		delete(c.exp, key)
	}
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if exp, ok := c.exp[key]; ok && time.Now().After(exp) {
		delete(c.data, key)
		delete(c.exp, key)
		return nil, false, nil
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	delete(c.exp, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// hookStore overrides the Store methods the registry and dispatcher touch,
// with the same failure-count semantics as the real store.
type hookStore struct {
	store.Store

	mu           sync.Mutex
	hooks        map[uuid.UUID]*models.Webhook
	deliveryLogs []*models.DeliveryLog
	listCalls    int
}

func newHookStore() *hookStore {
	return &hookStore{hooks: make(map[uuid.UUID]*models.Webhook)}
}

func (s *hookStore) CreateWebhook(_ context.Context, w *models.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.hooks[w.ID] = &cp
	return nil
}

func (s *hookStore) GetWebhook(_ context.Context, id, ownerID uuid.UUID) (*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.hooks[id]
	if !ok || w.OwnerID != ownerID {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *hookStore) ListWebhooks(_ context.Context, ownerID uuid.UUID) ([]*models.Webhook, error) {
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

func (s *hookStore) ListActiveWebhooksForEvent(_ context.Context, event models.EventType) ([]*models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	var out []*models.Webhook
	for _, w := range s.hooks {
		if w.Status == models.WebhookActive && w.SubscribedTo(event) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *hookStore) UpdateWebhook(_ context.Context, id, ownerID uuid.UUID, update store.WebhookUpdate) (*models.Webhook, error) {
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

func (s *hookStore) DeleteWebhook(_ context.Context, id, ownerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.hooks[id]
	if !ok || w.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(s.hooks, id)
	return nil
}

func (s *hookStore) RecordDeliverySuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.hooks[id]; ok {
		w.FailureCount = 0
		w.LastDeliveredAt = &at
	}
	return nil
}

func (s *hookStore) RecordDeliveryFailure(_ context.Context, id uuid.UUID) (int, bool, error) {
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

func (s *hookStore) InsertDeliveryLog(_ context.Context, l *models.DeliveryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveryLogs = append(s.deliveryLogs, l)
	return nil
}

func (s *hookStore) ListDeliveryLogs(_ context.Context, webhookID uuid.UUID, _ int) ([]*models.DeliveryLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.DeliveryLog
	for _, l := range s.deliveryLogs {
		if l.WebhookID == webhookID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *hookStore) get(id uuid.UUID) *models.Webhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.hooks[id]
	return &cp
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}
