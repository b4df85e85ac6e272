// Package api wires the HTTP surface: middleware stack and routes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/suncrest/sungate/internal/api/handler"
	mw "github.com/suncrest/sungate/internal/api/middleware"
	"github.com/suncrest/sungate/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth *mw.Auth

	Health       http.HandlerFunc
	Credentials  *handler.Credentials
	Webhooks     *handler.Webhooks
	EventTrigger http.HandlerFunc
}

// NewRouter builds the chi router. The management surface (keys, webhooks)
// runs under owner resolution; the event trigger runs under bearer
// authentication with per-family scope checks in the handler.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", deps.Health)

	// Key management.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.ResolveOwner(models.ScopeAdmin))

		r.Post("/api/v1/keys", deps.Credentials.Create)
		r.Get("/api/v1/keys", deps.Credentials.List)
		r.Get("/api/v1/keys/{keyID}", deps.Credentials.Get)
		r.Patch("/api/v1/keys/{keyID}", deps.Credentials.Update)
		r.Delete("/api/v1/keys/{keyID}", deps.Credentials.Revoke)
		r.Post("/api/v1/keys/{keyID}/rotate", deps.Credentials.Rotate)
		r.Get("/api/v1/keys/{keyID}/usage", deps.Credentials.Usage)
	})

	// Validation probe for fronting services; no owner principal needed.
	r.Post("/api/v1/keys/validate", deps.Credentials.Validate)

	// Webhook management.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.ResolveOwner(models.ScopeManageWebhooks))

		r.Get("/api/v1/webhooks", deps.Webhooks.List)
		r.Post("/api/v1/webhooks", deps.Webhooks.Create)
		r.Get("/api/v1/webhooks/{webhookID}", deps.Webhooks.Get)
		r.Patch("/api/v1/webhooks/{webhookID}", deps.Webhooks.Update)
		r.Delete("/api/v1/webhooks/{webhookID}", deps.Webhooks.Delete)
		r.Get("/api/v1/webhooks/{webhookID}/deliveries", deps.Webhooks.Deliveries)
		r.Post("/api/v1/webhooks/{webhookID}/test", deps.Webhooks.Test)
	})

	// Event intake from business services.
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Require(""))

		r.Post("/api/v1/events", deps.EventTrigger)
	})

	return r
}
