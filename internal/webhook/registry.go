// Package webhook implements the subscription registry and the signed
// event-delivery dispatcher.
package webhook

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/suncrest/sungate/internal/cache"
	"github.com/suncrest/sungate/internal/keys"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/pkg/fault"
	"github.com/suncrest/sungate/pkg/models"
)

// RegistryUpdate carries a partial webhook update. Nil fields are unchanged.
type RegistryUpdate struct {
	URL    *string
	Events []models.EventType
	Status *models.WebhookStatus
}

// Registry is owner-scoped CRUD over webhook subscriptions. Access by a
// non-owner reports PermissionDenied whether or not the webhook exists, so
// existence cannot be probed.
type Registry struct {
	store store.Store
	cache cache.Cache
}

// NewRegistry creates a Registry.
func NewRegistry(s store.Store, c cache.Cache) *Registry {
	return &Registry{store: s, cache: c}
}

// List returns the owner's webhooks, secrets omitted by serialization.
func (r *Registry) List(ctx context.Context, ownerID uuid.UUID) ([]*models.Webhook, error) {
	hooks, err := r.store.ListWebhooks(ctx, ownerID)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "Failed to list webhooks")
	}
	return hooks, nil
}

// Get returns one webhook owned by ownerID.
func (r *Registry) Get(ctx context.Context, id, ownerID uuid.UUID) (*models.Webhook, error) {
	w, err := r.store.GetWebhook(ctx, id, ownerID)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	return w, nil
}

// Create registers a subscription and returns the signing secret exactly
// once; subsequent reads omit it.
func (r *Registry) Create(ctx context.Context, ownerID uuid.UUID, rawURL string, events []models.EventType) (*models.WebhookCreateResult, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := validateEvents(events); err != nil {
		return nil, err
	}

	secret, err := keys.NewWebhookSecret()
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "Failed to generate webhook secret")
	}

	now := time.Now().UTC()
	w := &models.Webhook{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		URL:       rawURL,
		Events:    events,
		Secret:    secret,
		Status:    models.WebhookActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateWebhook(ctx, w); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "Failed to create webhook")
	}

	r.invalidate(ctx, events)
	return &models.WebhookCreateResult{Webhook: *w, Secret: secret}, nil
}

// Update applies a partial update with the same validation rules as Create.
// Setting status back to active resets the failure count.
func (r *Registry) Update(ctx context.Context, id, ownerID uuid.UUID, update RegistryUpdate) (*models.Webhook, error) {
	if update.URL != nil {
		if err := validateURL(*update.URL); err != nil {
			return nil, err
		}
	}
	if update.Events != nil {
		if err := validateEvents(update.Events); err != nil {
			return nil, err
		}
	}
	if update.Status != nil {
		switch *update.Status {
		case models.WebhookActive, models.WebhookPaused:
		default:
			return nil, fault.New(fault.InvalidArgument, "status must be active or paused")
		}
	}

	// Fetch first so the old event set can be invalidated too.
	old, err := r.store.GetWebhook(ctx, id, ownerID)
	if err != nil {
		return nil, mapRegistryError(err)
	}

	w, err := r.store.UpdateWebhook(ctx, id, ownerID, store.WebhookUpdate{
		URL:    update.URL,
		Events: update.Events,
		Status: update.Status,
	})
	if err != nil {
		return nil, mapRegistryError(err)
	}

	r.invalidate(ctx, old.Events)
	r.invalidate(ctx, w.Events)
	return w, nil
}

// Delete removes the subscription.
func (r *Registry) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	old, err := r.store.GetWebhook(ctx, id, ownerID)
	if err != nil {
		return mapRegistryError(err)
	}
	if err := r.store.DeleteWebhook(ctx, id, ownerID); err != nil {
		return mapRegistryError(err)
	}
	r.invalidate(ctx, old.Events)
	return nil
}

// DeliveryHistory returns recent delivery attempts for an owned webhook.
func (r *Registry) DeliveryHistory(ctx context.Context, id, ownerID uuid.UUID, limit int) ([]*models.DeliveryLog, error) {
	if _, err := r.store.GetWebhook(ctx, id, ownerID); err != nil {
		return nil, mapRegistryError(err)
	}
	logs, err := r.store.ListDeliveryLogs(ctx, id, limit)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "Failed to list delivery logs")
	}
	return logs, nil
}

func (r *Registry) invalidate(ctx context.Context, events []models.EventType) {
	for _, e := range events {
		// Best effort: a short TTL bounds staleness if this fails.
		_ = r.cache.Delete(ctx, cache.SubscriberKey(e))
	}
}

func mapRegistryError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		// Absent and not-owned collapse into the same answer.
		return fault.New(fault.PermissionDenied, "webhook not accessible")
	}
	return fault.Wrap(fault.Internal, err, "Webhook operation failed")
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fault.New(fault.InvalidArgument, "url must be a valid HTTPS URL")
	}
	return nil
}

func validateEvents(events []models.EventType) error {
	if len(events) == 0 {
		return fault.New(fault.InvalidArgument, "events must not be empty")
	}
	if bad := models.InvalidEventTypes(events); len(bad) > 0 {
		names := make([]string, len(bad))
		for i, b := range bad {
			names[i] = string(b)
		}
		return fault.New(fault.InvalidArgument, "invalid event types: %s", strings.Join(names, ", "))
	}
	return nil
}
