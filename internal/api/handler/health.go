// Package handler implements the gateway's HTTP endpoints.
package handler

import (
	"net/http"

	"github.com/suncrest/sungate/internal/api/response"
	"github.com/suncrest/sungate/internal/cache"
	"github.com/suncrest/sungate/internal/store"
)

// NewHealth reports liveness of the store and cache.
func NewHealth(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "ok"
		if err := s.Ping(r.Context()); err != nil {
			dbStatus = "unreachable"
		}
		cacheStatus := "ok"
		if err := c.Ping(r.Context()); err != nil {
			cacheStatus = "unreachable"
		}

		body := map[string]string{
			"status":   "ok",
			"database": dbStatus,
			"cache":    cacheStatus,
		}
		if dbStatus != "ok" || cacheStatus != "ok" {
			body["status"] = "degraded"
			response.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "A dependency is unreachable", body)
			return
		}
		response.JSON(w, body)
	}
}
