package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus is the delivery state of a subscription.
type WebhookStatus string

const (
	WebhookActive WebhookStatus = "active"
	WebhookPaused WebhookStatus = "paused"
	WebhookFailed WebhookStatus = "failed"
)

// FailureThreshold is the number of consecutive failed deliveries that
// forces a webhook into WebhookFailed until its owner reactivates it.
const FailureThreshold = 5

// Webhook is a delivery subscription: an HTTPS endpoint plus a signing
// secret, subscribed to a subset of event types. The secret is returned once
// at creation and omitted from all subsequent reads.
type Webhook struct {
	ID              uuid.UUID     `db:"id"                json:"id"`
	OwnerID         uuid.UUID     `db:"owner_id"          json:"owner_id"`
	URL             string        `db:"url"               json:"url"`
	Events          []EventType   `db:"events"            json:"events"`
	Secret          string        `db:"secret"            json:"-"`
	Status          WebhookStatus `db:"status"            json:"status"`
	FailureCount    int           `db:"failure_count"     json:"failure_count"`
	LastDeliveredAt *time.Time    `db:"last_delivered_at" json:"last_delivered_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at"        json:"updated_at"`
}

// SubscribedTo reports whether the webhook subscribes to the event type.
func (w *Webhook) SubscribedTo(event EventType) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// WebhookCreateResult is returned once at creation; Secret is the signing
// key and is never available again.
type WebhookCreateResult struct {
	Webhook
	Secret string `json:"secret"`
}

// EventPayload is the JSON body delivered to subscribers. The HMAC signature
// is computed over the exact marshalled bytes of this struct.
type EventPayload struct {
	ID        uuid.UUID `json:"id"`
	Event     EventType `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
