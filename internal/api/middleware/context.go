package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/suncrest/sungate/pkg/models"
)

type contextKey string

const (
	credentialKey contextKey = "credential"
	ownerIDKey    contextKey = "owner_id"
)

func setCredential(ctx context.Context, c *models.Credential) context.Context {
	return context.WithValue(ctx, credentialKey, c)
}

// GetCredential returns the authenticated credential set by Auth.Require.
func GetCredential(r *http.Request) (*models.Credential, bool) {
	c, ok := r.Context().Value(credentialKey).(*models.Credential)
	return c, ok
}

// SetOwnerID stores the resolved owner principal. Exported for handler tests.
func SetOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}

// GetOwnerID returns the owner principal set by Auth.ResolveOwner.
func GetOwnerID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(ownerIDKey).(uuid.UUID)
	return id, ok
}
