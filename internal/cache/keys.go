package cache

import (
	"fmt"

	"github.com/suncrest/sungate/pkg/models"
)

// SubscriberKey caches the active subscriber list for one event type.
// Registry writes invalidate it; a short TTL bounds staleness either way.
func SubscriberKey(event models.EventType) string {
	return fmt.Sprintf("webhooks:subscribers:%s", event)
}
