package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageLog is one append-only record per authenticated request. Rows are
// pruned by age by the maintenance sweep, never by the hot path.
type UsageLog struct {
	ID           uuid.UUID `db:"id"            json:"id"`
	CredentialID uuid.UUID `db:"credential_id" json:"credential_id"`
	Endpoint     string    `db:"endpoint"      json:"endpoint"`
	Method       string    `db:"method"        json:"method"`
	StatusCode   int       `db:"status_code"   json:"status_code"`
	DurationMS   int64     `db:"duration_ms"   json:"duration_ms"`
	ClientIP     string    `db:"client_ip"     json:"client_ip"`
	UserAgent    string    `db:"user_agent"    json:"user_agent"`
	CreatedAt    time.Time `db:"created_at"    json:"created_at"`
}

// DeliveryLog is one append-only record per webhook delivery attempt,
// written independently of the webhook's own failure-count update.
type DeliveryLog struct {
	ID          uuid.UUID `db:"id"           json:"id"`
	WebhookID   uuid.UUID `db:"webhook_id"   json:"webhook_id"`
	Event       EventType `db:"event"        json:"event"`
	URL         string    `db:"url"          json:"url"`
	Success     bool      `db:"success"      json:"success"`
	StatusCode  int       `db:"status_code"  json:"status_code,omitempty"`
	Error       string    `db:"error"        json:"error,omitempty"`
	PayloadSize int       `db:"payload_size" json:"payload_size"`
	CreatedAt   time.Time `db:"created_at"   json:"created_at"`
}
