// Package auth implements end-to-end request authentication: bearer
// extraction, key-format check, hash lookup, status and expiry gates, scope
// and IP authorization, and the atomic rate-limit consume. Every
// authentication path goes through the same transactional quota step; there
// is no non-transactional variant.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suncrest/sungate/internal/keys"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/pkg/fault"
	"github.com/suncrest/sungate/pkg/models"
)

// Request carries the request attributes the gateway authenticates against.
type Request struct {
	// Authorization is the raw Authorization header value.
	Authorization string
	ClientIP      string
}

// Authenticator validates bearer credentials against the store.
type Authenticator struct {
	store store.Store
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(s store.Store) *Authenticator {
	return &Authenticator{store: s}
}

// Authenticate runs the full validation pipeline and, on success, returns the
// credential with its usage counters already advanced. requiredScope may be
// empty to skip the scope gate. Usage-log bookkeeping belongs to the caller,
// which knows the response outcome.
func (a *Authenticator) Authenticate(ctx context.Context, req Request, requiredScope string) (*models.Credential, error) {
	token := extractBearerToken(req.Authorization)
	if token == "" {
		return nil, fault.New(fault.Unauthenticated, "Missing or invalid Authorization header")
	}

	// Reject malformed input before any store lookup so obviously bad keys
	// leak no timing or existence signal.
	if !keys.ValidFormat(token) {
		return nil, fault.New(fault.Unauthenticated, "Invalid API key")
	}

	cred, err := a.store.GetCredentialByHash(ctx, keys.Hash(token))
	if errors.Is(err, store.ErrNotFound) {
		// Same message as the format gate: unknown and wrong secrets are
		// indistinguishable to the caller.
		return nil, fault.New(fault.Unauthenticated, "Invalid API key")
	}
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "Failed to validate API key")
	}

	now := time.Now().UTC()

	if cred.Status != models.CredentialActive {
		return nil, fault.New(fault.PermissionDenied, "credential is %s", cred.Status)
	}
	if cred.Expired(now) {
		// ConsumeQuota flips the status transactionally and reports expired.
		if _, err := a.store.ConsumeQuota(ctx, cred.ID, req.ClientIP, now); err != nil {
			return nil, mapQuotaError(err)
		}
		return nil, fault.New(fault.PermissionDenied, "credential is %s", models.CredentialExpired)
	}

	if requiredScope != "" && !cred.HasScope(requiredScope) {
		return nil, fault.New(fault.PermissionDenied, "missing required scope %s", requiredScope)
	}

	if !cred.IPAllowed(req.ClientIP) {
		return nil, fault.New(fault.PermissionDenied, "IP address not allowed")
	}

	// The combined expiry-check / rate-check / increment. The store holds a
	// row lock for the duration, so concurrent calls on this credential
	// serialize and a ceiling can never be passed twice.
	cred, err = a.store.ConsumeQuota(ctx, cred.ID, req.ClientIP, now)
	if err != nil {
		return nil, mapQuotaError(err)
	}

	return cred, nil
}

func mapQuotaError(err error) error {
	var notActive *store.NotActiveError
	if errors.As(err, &notActive) {
		return fault.New(fault.PermissionDenied, "credential is %s", notActive.Status)
	}
	var quota *store.QuotaError
	if errors.As(err, &quota) {
		return fault.New(fault.ResourceExhausted, "rate limit exceeded for %s window", quota.Window)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fault.New(fault.Unauthenticated, "Invalid API key")
	}
	return fault.Wrap(fault.Internal, err, "Failed to validate API key")
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
