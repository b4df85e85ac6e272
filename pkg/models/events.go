package models

import "strings"

// EventType identifies a platform lifecycle event that webhooks can subscribe
// to. Adding a type is a compatible change; removing or renaming one is not.
type EventType string

const (
	EventProjectCreated   EventType = "project.created"
	EventProjectUpdated   EventType = "project.updated"
	EventProjectCompleted EventType = "project.completed"

	EventTaskCreated   EventType = "task.created"
	EventTaskCompleted EventType = "task.completed"

	EventBidPlaced   EventType = "bid.placed"
	EventBidAccepted EventType = "bid.accepted"
	EventBidRejected EventType = "bid.rejected"

	EventListingPublished EventType = "listing.published"
	EventListingUpdated   EventType = "listing.updated"
	EventListingSold      EventType = "listing.sold"

	EventLeadCreated   EventType = "lead.created"
	EventLeadQualified EventType = "lead.qualified"
	EventLeadConverted EventType = "lead.converted"

	EventReferralCreated   EventType = "referral.created"
	EventReferralConverted EventType = "referral.converted"
)

var validEvents = map[EventType]bool{
	EventProjectCreated:    true,
	EventProjectUpdated:    true,
	EventProjectCompleted:  true,
	EventTaskCreated:       true,
	EventTaskCompleted:     true,
	EventBidPlaced:         true,
	EventBidAccepted:       true,
	EventBidRejected:       true,
	EventListingPublished:  true,
	EventListingUpdated:    true,
	EventListingSold:       true,
	EventLeadCreated:       true,
	EventLeadQualified:     true,
	EventLeadConverted:     true,
	EventReferralCreated:   true,
	EventReferralConverted: true,
}

// ValidEventType reports whether t is a known event type.
func ValidEventType(t EventType) bool {
	return validEvents[t]
}

// WriteScopeFor returns the write scope that authorizes emitting events of
// t's family, or "" for an unknown family.
func WriteScopeFor(t EventType) string {
	family, _, ok := strings.Cut(string(t), ".")
	if !ok {
		return ""
	}
	switch family {
	case "project":
		return ScopeWriteProjects
	case "task":
		return ScopeWriteTasks
	case "bid":
		return ScopeWriteBids
	case "listing":
		return ScopeWriteListings
	case "lead":
		return ScopeWriteLeads
	case "referral":
		return ScopeWriteReferrals
	default:
		return ""
	}
}

// InvalidEventTypes returns the entries of events that are not known types.
func InvalidEventTypes(events []EventType) []EventType {
	var bad []EventType
	for _, e := range events {
		if !validEvents[e] {
			bad = append(bad, e)
		}
	}
	return bad
}
