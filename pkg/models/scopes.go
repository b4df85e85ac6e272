package models

// Capability scopes a credential may hold. Authorization requires the named
// scope or ScopeAdmin.
const (
	ScopeReadProjects   = "read_projects"
	ScopeWriteProjects  = "write_projects"
	ScopeReadTasks      = "read_tasks"
	ScopeWriteTasks     = "write_tasks"
	ScopeReadBids       = "read_bids"
	ScopeWriteBids      = "write_bids"
	ScopeReadListings   = "read_listings"
	ScopeWriteListings  = "write_listings"
	ScopeReadLeads      = "read_leads"
	ScopeWriteLeads     = "write_leads"
	ScopeReadReferrals  = "read_referrals"
	ScopeWriteReferrals = "write_referrals"

	// ScopeManageWebhooks gates the webhook management surface, separate
	// from the data read/write scopes.
	ScopeManageWebhooks = "manage_webhooks"

	// ScopeAdmin satisfies every scope check.
	ScopeAdmin = "admin"
)

var validScopes = map[string]bool{
	ScopeReadProjects:   true,
	ScopeWriteProjects:  true,
	ScopeReadTasks:      true,
	ScopeWriteTasks:     true,
	ScopeReadBids:       true,
	ScopeWriteBids:      true,
	ScopeReadListings:   true,
	ScopeWriteListings:  true,
	ScopeReadLeads:      true,
	ScopeWriteLeads:     true,
	ScopeReadReferrals:  true,
	ScopeWriteReferrals: true,
	ScopeManageWebhooks: true,
	ScopeAdmin:          true,
}

// ValidScope reports whether s is a known scope.
func ValidScope(s string) bool {
	return validScopes[s]
}

// InvalidScopes returns the entries of scopes that are not known scopes.
func InvalidScopes(scopes []string) []string {
	var bad []string
	for _, s := range scopes {
		if !validScopes[s] {
			bad = append(bad, s)
		}
	}
	return bad
}
