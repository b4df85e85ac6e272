package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/suncrest/sungate/internal/api/middleware"
	"github.com/suncrest/sungate/internal/api/response"
	"github.com/suncrest/sungate/internal/webhook"
	"github.com/suncrest/sungate/pkg/models"
)

// Webhooks serves the subscription management surface.
type Webhooks struct {
	registry   *webhook.Registry
	dispatcher *webhook.Dispatcher
}

// NewWebhooks creates the webhook handlers.
func NewWebhooks(reg *webhook.Registry, d *webhook.Dispatcher) *Webhooks {
	return &Webhooks{registry: reg, dispatcher: d}
}

// Create registers a subscription. The signing secret appears in this
// response only.
func (h *Webhooks) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing owner principal", nil)
		return
	}

	var req struct {
		URL    string             `json:"url"`
		Events []models.EventType `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid JSON body", nil)
		return
	}

	result, err := h.registry.Create(r.Context(), ownerID, req.URL, req.Events)
	if err != nil {
		response.Fault(w, err)
		return
	}
	response.Created(w, result)
}

// List returns the owner's subscriptions.
func (h *Webhooks) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing owner principal", nil)
		return
	}

	hooks, err := h.registry.List(r.Context(), ownerID)
	if err != nil {
		response.Fault(w, err)
		return
	}
	if hooks == nil {
		hooks = []*models.Webhook{}
	}
	response.JSON(w, hooks)
}

// Get returns one owned subscription.
func (h *Webhooks) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	hook, err := h.registry.Get(r.Context(), id, ownerID)
	if err != nil {
		response.Fault(w, err)
		return
	}
	response.JSON(w, hook)
}

// Update applies a partial update. Setting status back to active clears the
// failure count, which is how a disabled webhook is re-armed.
func (h *Webhooks) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	var req struct {
		URL    *string               `json:"url"`
		Events []models.EventType    `json:"events"`
		Status *models.WebhookStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid JSON body", nil)
		return
	}

	hook, err := h.registry.Update(r.Context(), id, ownerID, webhook.RegistryUpdate{
		URL:    req.URL,
		Events: req.Events,
		Status: req.Status,
	})
	if err != nil {
		response.Fault(w, err)
		return
	}
	response.JSON(w, hook)
}

// Delete removes the subscription.
func (h *Webhooks) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	if err := h.registry.Delete(r.Context(), id, ownerID); err != nil {
		response.Fault(w, err)
		return
	}
	response.NoContent(w)
}

// Deliveries returns the recent delivery attempts for an owned subscription.
func (h *Webhooks) Deliveries(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	logs, err := h.registry.DeliveryHistory(r.Context(), id, ownerID, 50)
	if err != nil {
		response.Fault(w, err)
		return
	}
	if logs == nil {
		logs = []*models.DeliveryLog{}
	}
	response.JSON(w, logs)
}

// Test fires one synchronous signed delivery at the endpoint and returns the
// outcome. The attempt counts toward the failure threshold like any other.
func (h *Webhooks) Test(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	// The event field is optional and so is the body itself.
	var req struct {
		Event models.EventType `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid JSON body", nil)
		return
	}
	if req.Event == "" {
		req.Event = models.EventProjectCreated
	}

	log, err := h.dispatcher.Test(r.Context(), id, ownerID, req.Event)
	if err != nil {
		response.Fault(w, err)
		return
	}
	response.JSON(w, log)
}

func (h *Webhooks) pathIDs(w http.ResponseWriter, r *http.Request) (ownerID, id uuid.UUID, ok bool) {
	ownerID, hasOwner := middleware.GetOwnerID(r)
	if !hasOwner {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing owner principal", nil)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "webhookID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "webhook id must be a UUID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, id, true
}
