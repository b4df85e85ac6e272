package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/suncrest/sungate/internal/api/middleware"
	"github.com/suncrest/sungate/internal/api/response"
	"github.com/suncrest/sungate/internal/keys"
	"github.com/suncrest/sungate/internal/store"
	"github.com/suncrest/sungate/pkg/models"
)

// Credentials serves the API-key management surface. Every route is scoped
// to the owner principal resolved by the middleware.
type Credentials struct {
	store store.Store
}

// NewCredentials creates the credential handlers.
func NewCredentials(s store.Store) *Credentials {
	return &Credentials{store: s}
}

// Create issues a new key. The plaintext appears in this response only.
func (h *Credentials) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing owner principal", nil)
		return
	}

	var req struct {
		Name           string            `json:"name"`
		Environment    string            `json:"environment"`
		Scopes         []string          `json:"scopes"`
		RateLimit      *models.RateLimit `json:"rate_limit"`
		AllowedIPs     []string          `json:"allowed_ips"`
		AllowedDomains []string          `json:"allowed_domains"`
		ExpiresAt      *time.Time        `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid JSON body", nil)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "name is required", nil)
		return
	}
	env := models.Environment(req.Environment)
	if req.Environment == "" {
		env = models.EnvProduction
	}
	if !models.ValidEnvironment(env) {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT",
			"environment must be development or production", nil)
		return
	}
	if len(req.Scopes) == 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "scopes must not be empty", nil)
		return
	}
	if bad := models.InvalidScopes(req.Scopes); len(bad) > 0 {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT",
			"invalid scopes: "+strings.Join(bad, ", "), nil)
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "expires_at must be in the future", nil)
		return
	}

	plaintext, err := keys.Generate(env)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Failed to generate key", nil)
		return
	}

	limits := models.DefaultRateLimit(env)
	if req.RateLimit != nil {
		limits = *req.RateLimit
	}

	now := time.Now().UTC()
	cred := &models.Credential{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Name:           req.Name,
		SecretHash:     keys.Hash(plaintext),
		DisplayPrefix:  keys.DisplayPrefix(plaintext),
		Status:         models.CredentialActive,
		Environment:    env,
		Scopes:         req.Scopes,
		RateLimit:      limits,
		Usage:          models.Usage{LastResetAt: now},
		AllowedIPs:     req.AllowedIPs,
		AllowedDomains: req.AllowedDomains,
		ExpiresAt:      req.ExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.CreateCredential(r.Context(), cred); err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Failed to create key", nil)
		return
	}

	response.Created(w, models.CredentialCreateResult{Credential: *cred, Key: plaintext})
}

// List returns the owner's keys, hashes and plaintexts omitted.
func (h *Credentials) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.GetOwnerID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing owner principal", nil)
		return
	}

	creds, err := h.store.ListCredentials(r.Context(), ownerID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Failed to list keys", nil)
		return
	}
	if creds == nil {
		creds = []*models.Credential{}
	}
	response.JSON(w, creds)
}

// Get returns one owned key.
func (h *Credentials) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	cred, err := h.store.GetCredential(r.Context(), id, ownerID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	response.JSON(w, cred)
}

// Update applies a partial update. Status transitions through this route are
// limited to active and suspended; revocation has its own route and is final.
func (h *Credentials) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	var req struct {
		Name           *string           `json:"name"`
		Status         *string           `json:"status"`
		Scopes         []string          `json:"scopes"`
		RateLimit      *models.RateLimit `json:"rate_limit"`
		AllowedIPs     []string          `json:"allowed_ips"`
		AllowedDomains []string          `json:"allowed_domains"`
		ExpiresAt      *time.Time        `json:"expires_at"`
		ClearExpiresAt bool              `json:"clear_expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "Invalid JSON body", nil)
		return
	}

	update := store.CredentialUpdate{
		Name:           req.Name,
		Scopes:         req.Scopes,
		RateLimit:      req.RateLimit,
		AllowedIPs:     req.AllowedIPs,
		AllowedDomains: req.AllowedDomains,
		ExpiresAt:      req.ExpiresAt,
		ClearExpiresAt: req.ClearExpiresAt,
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "name must not be empty", nil)
		return
	}
	if req.Scopes != nil {
		if bad := models.InvalidScopes(req.Scopes); len(bad) > 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT",
				"invalid scopes: "+strings.Join(bad, ", "), nil)
			return
		}
	}
	if req.Status != nil {
		status := models.CredentialStatus(*req.Status)
		if status != models.CredentialActive && status != models.CredentialSuspended {
			response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT",
				"status must be active or suspended", nil)
			return
		}
		update.Status = &status
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "expires_at must be in the future", nil)
		return
	}

	cred, err := h.store.UpdateCredential(r.Context(), id, ownerID, update)
	if err != nil {
		h.storeError(w, err)
		return
	}
	response.JSON(w, cred)
}

// Revoke permanently disables the key. Irreversible.
func (h *Credentials) Revoke(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	if err := h.store.RevokeCredential(r.Context(), id, ownerID); err != nil {
		h.storeError(w, err)
		return
	}
	response.NoContent(w)
}

// Rotate swaps the secret in place: same grant, new plaintext. The old key
// stops resolving the moment the swap commits.
func (h *Credentials) Rotate(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	cred, err := h.store.GetCredential(r.Context(), id, ownerID)
	if err != nil {
		h.storeError(w, err)
		return
	}

	plaintext, err := keys.Generate(cred.Environment)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Failed to generate key", nil)
		return
	}

	rotated, err := h.store.RotateCredentialSecret(r.Context(), id, ownerID,
		keys.Hash(plaintext), keys.DisplayPrefix(plaintext))
	if err != nil {
		h.storeError(w, err)
		return
	}
	response.JSON(w, models.CredentialCreateResult{Credential: *rotated, Key: plaintext})
}

// Usage returns the live window counters and the recent request log.
func (h *Credentials) Usage(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.pathIDs(w, r)
	if !ok {
		return
	}

	cred, err := h.store.GetCredential(r.Context(), id, ownerID)
	if err != nil {
		h.storeError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	logs, err := h.store.ListUsageLogs(r.Context(), id, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Failed to list usage logs", nil)
		return
	}
	if logs == nil {
		logs = []*models.UsageLog{}
	}

	response.JSON(w, map[string]any{
		"usage":      cred.Usage,
		"rate_limit": cred.RateLimit,
		"requests":   logs,
	})
}

// Validate answers whether a raw key currently resolves, without consuming
// quota and without returning anything secret.
func (h *Credentials) Validate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "key is required", nil)
		return
	}

	if !keys.ValidFormat(req.Key) {
		response.JSON(w, map[string]any{"valid": false})
		return
	}

	cred, err := h.store.GetCredentialByHash(r.Context(), keys.Hash(req.Key))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.JSON(w, map[string]any{"valid": false})
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Failed to validate key", nil)
		return
	}

	valid := cred.Status == models.CredentialActive && !cred.Expired(time.Now().UTC())
	response.JSON(w, map[string]any{
		"valid":          valid,
		"status":         cred.Status,
		"environment":    cred.Environment,
		"scopes":         cred.Scopes,
		"display_prefix": cred.DisplayPrefix,
	})
}

func (h *Credentials) pathIDs(w http.ResponseWriter, r *http.Request) (ownerID, id uuid.UUID, ok bool) {
	ownerID, hasOwner := middleware.GetOwnerID(r)
	if !hasOwner {
		response.Error(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Missing owner principal", nil)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_ARGUMENT", "key id must be a UUID", nil)
		return uuid.Nil, uuid.Nil, false
	}
	return ownerID, id, true
}

func (h *Credentials) storeError(w http.ResponseWriter, err error) {
	// Absence and foreign ownership collapse into one answer so the route
	// never confirms whether a key id exists under another owner.
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusForbidden, "PERMISSION_DENIED", "Key not accessible", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL", "Key operation failed", nil)
}
