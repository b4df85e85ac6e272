package models

import (
	"time"

	"github.com/google/uuid"
)

// CredentialStatus is the lifecycle state of an API key.
type CredentialStatus string

const (
	CredentialActive    CredentialStatus = "active"
	CredentialSuspended CredentialStatus = "suspended"
	CredentialRevoked   CredentialStatus = "revoked"
	CredentialExpired   CredentialStatus = "expired"
)

// Environment selects the key prefix and the default rate ceilings.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ValidEnvironment reports whether env is a known environment.
func ValidEnvironment(env Environment) bool {
	return env == EnvDevelopment || env == EnvProduction
}

// RateLimit holds the four nested request ceilings for a credential.
type RateLimit struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
	PerDay    int `json:"per_day"`
	PerMonth  int `json:"per_month"`
}

// DefaultRateLimit returns the ceilings applied when a credential is created
// without explicit limits.
func DefaultRateLimit(env Environment) RateLimit {
	if env == EnvProduction {
		return RateLimit{PerMinute: 120, PerHour: 5000, PerDay: 50000, PerMonth: 1000000}
	}
	return RateLimit{PerMinute: 30, PerHour: 500, PerDay: 5000, PerMonth: 50000}
}

// Usage holds the running window counters for a credential. The four window
// counters reset independently; TotalRequests only ever grows.
type Usage struct {
	Minute        int        `json:"requests_this_minute"`
	Hour          int        `json:"requests_this_hour"`
	Day           int        `json:"requests_today"`
	Month         int        `json:"requests_this_month"`
	TotalRequests int64      `json:"total_requests"`
	LastResetAt   time.Time  `json:"last_reset_at"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`
}

// Credential is a stored API key grant. The raw key is returned exactly once,
// at creation or rotation; only the SHA-256 hash is stored. Credentials are
// never physically deleted — revocation flips status and stamps RevokedAt.
type Credential struct {
	ID             uuid.UUID        `db:"id"              json:"id"`
	OwnerID        uuid.UUID        `db:"owner_id"        json:"owner_id"`
	Name           string           `db:"name"            json:"name"`
	SecretHash     string           `db:"secret_hash"     json:"-"`
	DisplayPrefix  string           `db:"display_prefix"  json:"display_prefix"`
	Status         CredentialStatus `db:"status"          json:"status"`
	Environment    Environment      `db:"environment"     json:"environment"`
	Scopes         []string         `db:"scopes"          json:"scopes"`
	RateLimit      RateLimit        `json:"rate_limit"`
	Usage          Usage            `json:"usage"`
	AllowedIPs     []string         `db:"allowed_ips"     json:"allowed_ips,omitempty"`
	AllowedDomains []string         `db:"allowed_domains" json:"allowed_domains,omitempty"`
	LastUsedIP     string           `db:"last_used_ip"    json:"last_used_ip,omitempty"`
	ExpiresAt      *time.Time       `db:"expires_at"      json:"expires_at,omitempty"`
	CreatedAt      time.Time        `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at"      json:"updated_at"`
	RevokedAt      *time.Time       `db:"revoked_at"      json:"revoked_at,omitempty"`
	RotatedAt      *time.Time       `db:"rotated_at"      json:"rotated_at,omitempty"`
}

// HasScope reports whether the credential holds the given scope or the
// universal admin scope.
func (c *Credential) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// IPAllowed reports whether ip passes the credential's allow-list.
// An empty list allows every caller.
func (c *Credential) IPAllowed(ip string) bool {
	if len(c.AllowedIPs) == 0 {
		return true
	}
	for _, allowed := range c.AllowedIPs {
		if allowed == ip {
			return true
		}
	}
	return false
}

// Expired reports whether the credential has an expiry in the past.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}

// CredentialCreateResult is returned once at creation or rotation; Key is the
// plaintext secret and is never available again.
type CredentialCreateResult struct {
	Credential
	Key string `json:"key"`
}
