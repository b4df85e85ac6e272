package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/suncrest/sungate/internal/api/response"
	"github.com/suncrest/sungate/internal/audit"
	"github.com/suncrest/sungate/internal/auth"
	"github.com/suncrest/sungate/pkg/models"
)

// HeaderOwnerID carries the owner principal asserted by the fronting
// gateway on the management surface.
const HeaderOwnerID = "X-Owner-ID"

// Auth provides the bearer-authentication and owner-resolution middleware.
// Authenticated requests get one usage-log row recorded after the response
// completes, so status code and duration reflect the real outcome.
type Auth struct {
	authenticator *auth.Authenticator
	audit         *audit.Logger
}

// NewAuth creates the Auth middleware.
func NewAuth(a *auth.Authenticator, logger *audit.Logger) *Auth {
	return &Auth{authenticator: a, audit: logger}
}

// Require authenticates the bearer credential, enforcing scope when non-empty,
// and puts the credential in the request context. The full pipeline runs per
// request: format check, hash lookup, status and expiry gates, scope and IP
// gates, and the atomic quota consume.
func (a *Auth) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, err := a.authenticate(r, scope)
			if err != nil {
				response.Fault(w, err)
				return
			}

			setQuotaHeaders(w, cred)
			r = r.WithContext(setCredential(r.Context(), cred))
			a.serveLogged(w, r, cred, next)
		})
	}
}

// ResolveOwner resolves the owner principal for a management surface: the
// X-Owner-ID header when the fronting gateway asserts it, otherwise a bearer
// credential holding scope (admin always qualifies) acting on its own behalf.
func (a *Auth) ResolveOwner(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get(HeaderOwnerID); raw != "" {
				ownerID, err := uuid.Parse(raw)
				if err != nil {
					response.Error(w, http.StatusBadRequest,
						"INVALID_ARGUMENT", "X-Owner-ID must be a UUID", nil)
					return
				}
				next.ServeHTTP(w, r.WithContext(SetOwnerID(r.Context(), ownerID)))
				return
			}

			cred, err := a.authenticate(r, scope)
			if err != nil {
				response.Fault(w, err)
				return
			}

			setQuotaHeaders(w, cred)
			ctx := setCredential(r.Context(), cred)
			ctx = SetOwnerID(ctx, cred.OwnerID)
			a.serveLogged(w, r.WithContext(ctx), cred, next)
		})
	}
}

func (a *Auth) authenticate(r *http.Request, scope string) (*models.Credential, error) {
	return a.authenticator.Authenticate(r.Context(), auth.Request{
		Authorization: r.Header.Get("Authorization"),
		ClientIP:      clientIP(r),
	}, scope)
}

// serveLogged runs the handler and then records the usage-log row with the
// observed status and latency. The append is fire-and-forget.
func (a *Auth) serveLogged(w http.ResponseWriter, r *http.Request, cred *models.Credential, next http.Handler) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	next.ServeHTTP(rec, r)

	a.audit.RecordUsage(&models.UsageLog{
		CredentialID: cred.ID,
		Endpoint:     r.URL.Path,
		Method:       r.Method,
		StatusCode:   rec.status,
		DurationMS:   time.Since(start).Milliseconds(),
		ClientIP:     clientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

// setQuotaHeaders advertises the minute ceiling alongside the just-consumed
// counter, so well-behaved callers can back off before a 429.
func setQuotaHeaders(w http.ResponseWriter, cred *models.Credential) {
	if cred.RateLimit.PerMinute <= 0 {
		return
	}
	remaining := cred.RateLimit.PerMinute - cred.Usage.Minute
	if remaining < 0 {
		remaining = 0
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cred.RateLimit.PerMinute))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
