package handler

import (
	"encoding/json"
	"net/http"

	"github.com/suncrest/sungate/internal/api/middleware"
	"github.com/suncrest/sungate/internal/api/response"
	"github.com/suncrest/sungate/internal/webhook"
	"github.com/suncrest/sungate/pkg/models"
)

// NewEventTrigger accepts a platform event from an authenticated business
// caller and fans it out to subscribers. The caller needs the write scope of
// the event's family; delivery is asynchronous and the response reports only
// how many deliveries were scheduled.
func NewEventTrigger(d *webhook.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, ok := middleware.GetCredential(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing credential", nil)
			return
		}

		var req struct {
			Event models.EventType `json:"event"`
			Data  json.RawMessage  `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid JSON body", nil)
			return
		}
		if !models.ValidEventType(req.Event) {
			response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT",
				"unknown event type: "+string(req.Event), nil)
			return
		}

		scope := models.WriteScopeFor(req.Event)
		if !cred.HasScope(scope) {
			response.Error(w, http.StatusForbidden, "PERMISSION_DENIED",
				"credential lacks scope "+scope, nil)
			return
		}

		scheduled, err := d.Deliver(r.Context(), req.Event, req.Data)
		if err != nil {
			response.Fault(w, err)
			return
		}
		response.Accepted(w, map[string]any{
			"event":     req.Event,
			"scheduled": scheduled,
		})
	}
}
