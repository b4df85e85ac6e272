package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/suncrest/sungate/internal/ratelimit"
	"github.com/suncrest/sungate/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// NotActiveError is returned by ConsumeQuota when the credential's status
// forbids use. For a credential that expired during the call, Status is
// models.CredentialExpired and the flip has already been committed.
type NotActiveError struct {
	Status models.CredentialStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("credential is %s", e.Status)
}

// QuotaError is returned by ConsumeQuota when a rate ceiling is hit.
type QuotaError struct {
	Window ratelimit.Window
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s window", e.Window)
}

// CredentialUpdate carries the owner-editable fields of a credential.
// Nil fields are left unchanged; updates are last-writer-wins.
type CredentialUpdate struct {
	Name           *string
	Status         *models.CredentialStatus
	Scopes         []string
	RateLimit      *models.RateLimit
	AllowedIPs     []string
	AllowedDomains []string
	ExpiresAt      *time.Time
	ClearExpiresAt bool
}

// WebhookUpdate carries the owner-editable fields of a webhook subscription.
// Nil fields are left unchanged. Setting Status back to active resets the
// failure count.
type WebhookUpdate struct {
	URL    *string
	Events []models.EventType
	Status *models.WebhookStatus
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// Credentials.
	CreateCredential(ctx context.Context, c *models.Credential) error
	GetCredential(ctx context.Context, id, ownerID uuid.UUID) (*models.Credential, error)
	GetCredentialByHash(ctx context.Context, secretHash string) (*models.Credential, error)
	ListCredentials(ctx context.Context, ownerID uuid.UUID) ([]*models.Credential, error)
	UpdateCredential(ctx context.Context, id, ownerID uuid.UUID, update CredentialUpdate) (*models.Credential, error)
	RotateCredentialSecret(ctx context.Context, id, ownerID uuid.UUID, newHash, newPrefix string) (*models.Credential, error)
	RevokeCredential(ctx context.Context, id, ownerID uuid.UUID) error

	// ConsumeQuota is the combined expiry-check / rate-check / increment of
	// an authenticate call. It runs as one row-locked transaction so that
	// concurrent calls against the same credential serialize: a credential
	// that expired is flipped to expired and reported via NotActiveError; a
	// violated ceiling is reported via QuotaError; on success the updated
	// credential (counters advanced, last_used_ip stamped) is returned.
	ConsumeQuota(ctx context.Context, id uuid.UUID, clientIP string, now time.Time) (*models.Credential, error)

	// Webhooks.
	CreateWebhook(ctx context.Context, w *models.Webhook) error
	GetWebhook(ctx context.Context, id, ownerID uuid.UUID) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, ownerID uuid.UUID) ([]*models.Webhook, error)
	ListActiveWebhooksForEvent(ctx context.Context, event models.EventType) ([]*models.Webhook, error)
	UpdateWebhook(ctx context.Context, id, ownerID uuid.UUID, update WebhookUpdate) (*models.Webhook, error)
	DeleteWebhook(ctx context.Context, id, ownerID uuid.UUID) error

	// Delivery bookkeeping. RecordDeliverySuccess resets the failure count;
	// RecordDeliveryFailure increments it and forces status=failed once the
	// threshold is reached, returning the post-increment count.
	RecordDeliverySuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordDeliveryFailure(ctx context.Context, id uuid.UUID) (failureCount int, disabled bool, err error)

	// Audit logs.
	InsertUsageLog(ctx context.Context, l *models.UsageLog) error
	InsertDeliveryLog(ctx context.Context, l *models.DeliveryLog) error
	ListUsageLogs(ctx context.Context, credentialID uuid.UUID, limit int) ([]*models.UsageLog, error)
	ListDeliveryLogs(ctx context.Context, webhookID uuid.UUID, limit int) ([]*models.DeliveryLog, error)

	// Maintenance sweep.
	ExpireOverdueCredentials(ctx context.Context, now time.Time) (int64, error)
	PruneUsageLogs(ctx context.Context, before time.Time) (int64, error)
	PruneDeliveryLogs(ctx context.Context, before time.Time) (int64, error)
}
