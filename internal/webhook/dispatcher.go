package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suncrest/sungate/internal/audit"
	"github.com/suncrest/sungate/internal/cache"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/pkg/fault"
	"github.com/suncrest/sungate/pkg/models"
)

// subscriber is the cached projection of an active webhook. models.Webhook
// hides its secret from JSON, so the cache uses this private shape instead.
type subscriber struct {
	ID     uuid.UUID          `json:"id"`
	URL    string             `json:"url"`
	Secret string             `json:"secret"`
	Events []models.EventType `json:"events"`
}

// Dispatcher fans events out to every active subscriber. Deliver returns as
// soon as the attempts are scheduled; each attempt runs in its own goroutine
// with its own timeout, and its outcome feeds the webhook's failure counter
// and the delivery audit log.
type Dispatcher struct {
	store  store.Store
	cache  cache.Cache
	audit  *audit.Logger
	client *http.Client
	ttl    time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. timeout bounds each delivery attempt;
// cacheTTL bounds how stale the per-event subscriber cache may go.
func NewDispatcher(s store.Store, c cache.Cache, a *audit.Logger, timeout, cacheTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		store:  s,
		cache:  c,
		audit:  a,
		client: &http.Client{Timeout: timeout},
		ttl:    cacheTTL,
	}
}

// Deliver schedules one delivery per active subscriber of the event and
// returns the number scheduled. The payload is marshalled once; the signature
// is computed per webhook over those exact bytes.
func (d *Dispatcher) Deliver(ctx context.Context, event models.EventType, data any) (int, error) {
	if !models.ValidEventType(event) {
		return 0, fault.New(fault.InvalidArgument, "unknown event type: %s", event)
	}

	subs, err := d.subscribers(ctx, event)
	if err != nil {
		return 0, fault.Wrap(fault.Internal, err, "Failed to load subscribers")
	}
	if len(subs) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(models.EventPayload{
		ID:        uuid.New(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return 0, fault.Wrap(fault.Internal, err, "Failed to encode event payload")
	}

	for _, sub := range subs {
		d.wg.Add(1)
		go func(sub subscriber) {
			defer d.wg.Done()
			d.attempt(context.Background(), sub, event, body)
		}(sub)
	}
	return len(subs), nil
}

// Test sends a synthetic event to one owned webhook and waits for the
// result. The attempt counts toward the failure threshold like any other, so
// a disabled webhook is rejected rather than pushed further past it.
func (d *Dispatcher) Test(ctx context.Context, id, ownerID uuid.UUID, event models.EventType) (*models.DeliveryLog, error) {
	if !models.ValidEventType(event) {
		return nil, fault.New(fault.InvalidArgument, "unknown event type: %s", event)
	}

	w, err := d.store.GetWebhook(ctx, id, ownerID)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	if w.Status == models.WebhookFailed {
		return nil, fault.New(fault.InvalidArgument, "webhook is disabled; reactivate it before testing")
	}

	body, err := json.Marshal(models.EventPayload{
		ID:        uuid.New(),
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      map[string]string{"test": "true"},
	})
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "Failed to encode event payload")
	}

	log := d.attempt(ctx, subscriber{ID: w.ID, URL: w.URL, Secret: w.Secret, Events: w.Events}, event, body)
	return log, nil
}

// attempt posts one signed payload, records the outcome against the webhook
// and in the delivery audit log, and returns the log entry.
func (d *Dispatcher) attempt(ctx context.Context, sub subscriber, event models.EventType, body []byte) *models.DeliveryLog {
	log := &models.DeliveryLog{
		ID:          uuid.New(),
		WebhookID:   sub.ID,
		Event:       event,
		URL:         sub.URL,
		PayloadSize: len(body),
		CreatedAt:   time.Now().UTC(),
	}

	status, err := d.post(ctx, sub, event, body)
	log.StatusCode = status
	if err != nil {
		log.Error = err.Error()
	}
	log.Success = err == nil && status >= 200 && status < 300
	if err == nil && !log.Success {
		log.Error = fmt.Sprintf("endpoint returned %d", status)
	}

	bookCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if log.Success {
		if err := d.store.RecordDeliverySuccess(bookCtx, sub.ID, log.CreatedAt); err != nil {
			slog.Warn("failed to record delivery success", "webhook_id", sub.ID, "error", err)
		}
	} else {
		count, disabled, err := d.store.RecordDeliveryFailure(bookCtx, sub.ID)
		if err != nil {
			slog.Warn("failed to record delivery failure", "webhook_id", sub.ID, "error", err)
		} else if disabled {
			slog.Warn("webhook disabled after consecutive failures",
				"webhook_id", sub.ID, "failure_count", count)
			// Evict the cached subscriber list for every event the webhook
			// was listening on, not just the one that tripped the threshold.
			events := sub.Events
			if len(events) == 0 {
				events = []models.EventType{event}
			}
			for _, ev := range events {
				_ = d.cache.Delete(bookCtx, cache.SubscriberKey(ev))
			}
		}
	}

	d.audit.RecordDelivery(log)
	return log
}

func (d *Dispatcher) post(ctx context.Context, sub subscriber, event models.EventType, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(event))
	req.Header.Set(HeaderSignature, Sign(sub.Secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// subscribers resolves the active subscriber list for an event, served from
// Redis when fresh. A cache error falls through to the database.
func (d *Dispatcher) subscribers(ctx context.Context, event models.EventType) ([]subscriber, error) {
	key := cache.SubscriberKey(event)
	if raw, ok, err := d.cache.Get(ctx, key); err == nil && ok {
		var subs []subscriber
		if err := json.Unmarshal(raw, &subs); err == nil {
			return subs, nil
		}
		_ = d.cache.Delete(ctx, key)
	}

	hooks, err := d.store.ListActiveWebhooksForEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	subs := make([]subscriber, len(hooks))
	for i, w := range hooks {
		subs[i] = subscriber{ID: w.ID, URL: w.URL, Secret: w.Secret, Events: w.Events}
	}

	if raw, err := json.Marshal(subs); err == nil {
		if err := d.cache.Set(ctx, key, raw, d.ttl); err != nil {
			slog.Warn("failed to cache subscriber list", "event", event, "error", err)
		}
	}
	return subs, nil
}

// Close waits for in-flight deliveries to finish.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}
