package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/suncrest/sungate/internal/ratelimit"
	"github.com/suncrest/sungate/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Credentials ---

const credentialColumns = `id, owner_id, name, secret_hash, display_prefix, status, environment, scopes,
	limit_minute, limit_hour, limit_day, limit_month,
	requests_minute, requests_hour, requests_day, requests_month, total_requests,
	last_reset_at, last_request_at, allowed_ips, allowed_domains, last_used_ip,
	expires_at, created_at, updated_at, revoked_at, rotated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var c models.Credential
	var status, environment string
	err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.SecretHash, &c.DisplayPrefix, &status, &environment, &c.Scopes,
		&c.RateLimit.PerMinute, &c.RateLimit.PerHour, &c.RateLimit.PerDay, &c.RateLimit.PerMonth,
		&c.Usage.Minute, &c.Usage.Hour, &c.Usage.Day, &c.Usage.Month, &c.Usage.TotalRequests,
		&c.Usage.LastResetAt, &c.Usage.LastRequestAt, &c.AllowedIPs, &c.AllowedDomains, &c.LastUsedIP,
		&c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt, &c.RevokedAt, &c.RotatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = models.CredentialStatus(status)
	c.Environment = models.Environment(environment)
	return &c, nil
}

func (s *PostgresStore) CreateCredential(ctx context.Context, c *models.Credential) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO credentials (id, owner_id, name, secret_hash, display_prefix, status, environment, scopes,
		   limit_minute, limit_hour, limit_day, limit_month,
		   last_reset_at, allowed_ips, allowed_domains, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		c.ID, c.OwnerID, c.Name, c.SecretHash, c.DisplayPrefix, string(c.Status), string(c.Environment), textArray(c.Scopes),
		c.RateLimit.PerMinute, c.RateLimit.PerHour, c.RateLimit.PerDay, c.RateLimit.PerMonth,
		c.Usage.LastResetAt, textArray(c.AllowedIPs), textArray(c.AllowedDomains), c.ExpiresAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCredential(ctx context.Context, id, ownerID uuid.UUID) (*models.Credential, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1 AND owner_id = $2`, id, ownerID)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCredentialByHash(ctx context.Context, secretHash string) (*models.Credential, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE secret_hash = $1`, secretHash)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get credential by hash: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCredentials(ctx context.Context, ownerID uuid.UUID) ([]*models.Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, id, ownerID uuid.UUID, update CredentialUpdate) (*models.Credential, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id, ownerID}
	argIdx := 3

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if update.Name != nil {
		addSet("name", *update.Name)
	}
	if update.Status != nil {
		addSet("status", string(*update.Status))
	}
	if update.Scopes != nil {
		addSet("scopes", update.Scopes)
	}
	if update.RateLimit != nil {
		addSet("limit_minute", update.RateLimit.PerMinute)
		addSet("limit_hour", update.RateLimit.PerHour)
		addSet("limit_day", update.RateLimit.PerDay)
		addSet("limit_month", update.RateLimit.PerMonth)
	}
	if update.AllowedIPs != nil {
		addSet("allowed_ips", update.AllowedIPs)
	}
	if update.AllowedDomains != nil {
		addSet("allowed_domains", update.AllowedDomains)
	}
	if update.ExpiresAt != nil {
		addSet("expires_at", *update.ExpiresAt)
	} else if update.ClearExpiresAt {
		sets = append(sets, "expires_at = NULL")
	}

	query := `UPDATE credentials SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND owner_id = $2 AND status <> 'revoked' RETURNING ` + credentialColumns

	c, err := scanCredential(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) RotateCredentialSecret(ctx context.Context, id, ownerID uuid.UUID, newHash, newPrefix string) (*models.Credential, error) {
	// The hash swap is a single statement: the previous plaintext stops
	// matching the moment this commits.
	row := s.pool.QueryRow(ctx,
		`UPDATE credentials SET secret_hash = $3, display_prefix = $4, rotated_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status <> 'revoked'
		 RETURNING `+credentialColumns, id, ownerID, newHash, newPrefix)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("rotate credential secret: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) RevokeCredential(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE credentials SET status = 'revoked', revoked_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND status <> 'revoked'`, id, ownerID)
	if err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ConsumeQuota(ctx context.Context, id uuid.UUID, clientIP string, now time.Time) (*models.Credential, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin quota tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock serializes concurrent authenticate calls on this credential.
	row := tx.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE id = $1 FOR UPDATE`, id)
	c, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock credential: %w", err)
	}

	if c.Status == models.CredentialActive && c.Expired(now) {
		if _, err := tx.Exec(ctx,
			`UPDATE credentials SET status = 'expired', updated_at = NOW() WHERE id = $1`, id); err != nil {
			return nil, fmt.Errorf("expire credential: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit expiry: %w", err)
		}
		return nil, &NotActiveError{Status: models.CredentialExpired}
	}

	if c.Status != models.CredentialActive {
		return nil, &NotActiveError{Status: c.Status}
	}

	decision := ratelimit.Evaluate(c.Usage, c.RateLimit, now)
	if !decision.Allowed {
		return nil, &QuotaError{Window: decision.Violated}
	}

	u := decision.Usage
	if _, err := tx.Exec(ctx,
		`UPDATE credentials SET requests_minute = $2, requests_hour = $3, requests_day = $4, requests_month = $5,
		   total_requests = $6, last_reset_at = $7, last_request_at = $8, last_used_ip = $9, updated_at = NOW()
		 WHERE id = $1`,
		id, u.Minute, u.Hour, u.Day, u.Month, u.TotalRequests, u.LastResetAt, u.LastRequestAt, clientIP); err != nil {
		return nil, fmt.Errorf("advance usage counters: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit quota: %w", err)
	}

	c.Usage = u
	c.LastUsedIP = clientIP
	return c, nil
}

// --- Webhooks ---

const webhookColumns = `id, owner_id, url, events, secret, status, failure_count, last_delivered_at, created_at, updated_at`

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var w models.Webhook
	var status string
	var events []string
	err := row.Scan(&w.ID, &w.OwnerID, &w.URL, &events, &w.Secret, &status,
		&w.FailureCount, &w.LastDeliveredAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = models.WebhookStatus(status)
	w.Events = make([]models.EventType, len(events))
	for i, e := range events {
		w.Events[i] = models.EventType(e)
	}
	return &w, nil
}

func eventStrings(events []models.EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func (s *PostgresStore) CreateWebhook(ctx context.Context, w *models.Webhook) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO webhooks (id, owner_id, url, events, secret, status, failure_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		w.ID, w.OwnerID, w.URL, eventStrings(w.Events), w.Secret, string(w.Status), w.FailureCount, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create webhook: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetWebhook(ctx context.Context, id, ownerID uuid.UUID) (*models.Webhook, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	w, err := scanWebhook(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) ListWebhooks(ctx context.Context, ownerID uuid.UUID) ([]*models.Webhook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

func (s *PostgresStore) ListActiveWebhooksForEvent(ctx context.Context, event models.EventType) ([]*models.Webhook, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE status = 'active' AND $1 = ANY(events)`, string(event))
	if err != nil {
		return nil, fmt.Errorf("list webhooks for event: %w", err)
	}
	defer rows.Close()

	var hooks []*models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

func (s *PostgresStore) UpdateWebhook(ctx context.Context, id, ownerID uuid.UUID, update WebhookUpdate) (*models.Webhook, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id, ownerID}
	argIdx := 3

	addSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if update.URL != nil {
		addSet("url", *update.URL)
	}
	if update.Events != nil {
		addSet("events", eventStrings(update.Events))
	}
	if update.Status != nil {
		addSet("status", string(*update.Status))
		if *update.Status == models.WebhookActive {
			// Reactivation clears the consecutive-failure streak.
			sets = append(sets, "failure_count = 0")
		}
	}

	query := `UPDATE webhooks SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND owner_id = $2 RETURNING ` + webhookColumns

	w, err := scanWebhook(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update webhook: %w", err)
	}
	return w, nil
}

func (s *PostgresStore) DeleteWebhook(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordDeliverySuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE webhooks SET failure_count = 0, last_delivered_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("record delivery success: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordDeliveryFailure(ctx context.Context, id uuid.UUID) (int, bool, error) {
	// Increment and the threshold check are one statement so concurrent
	// failures cannot both observe a pre-threshold count.
	var count int
	var status string
	err := s.pool.QueryRow(ctx,
		`UPDATE webhooks SET failure_count = failure_count + 1,
		   status = CASE WHEN failure_count + 1 >= $2 THEN 'failed' ELSE status END,
		   updated_at = NOW()
		 WHERE id = $1
		 RETURNING failure_count, status`, id, models.FailureThreshold).Scan(&count, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, ErrNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("record delivery failure: %w", err)
	}
	return count, status == string(models.WebhookFailed), nil
}

// --- Audit logs ---

func (s *PostgresStore) InsertUsageLog(ctx context.Context, l *models.UsageLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_logs (id, credential_id, endpoint, method, status_code, duration_ms, client_ip, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.CredentialID, l.Endpoint, l.Method, l.StatusCode, l.DurationMS, l.ClientIP, l.UserAgent, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertDeliveryLog(ctx context.Context, l *models.DeliveryLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO delivery_logs (id, webhook_id, event, url, success, status_code, error, payload_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.WebhookID, string(l.Event), l.URL, l.Success, l.StatusCode, l.Error, l.PayloadSize, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListUsageLogs(ctx context.Context, credentialID uuid.UUID, limit int) ([]*models.UsageLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, credential_id, endpoint, method, status_code, duration_ms, client_ip, user_agent, created_at
		 FROM usage_logs WHERE credential_id = $1 ORDER BY created_at DESC LIMIT $2`, credentialID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.UsageLog
	for rows.Next() {
		var l models.UsageLog
		if err := rows.Scan(&l.ID, &l.CredentialID, &l.Endpoint, &l.Method, &l.StatusCode,
			&l.DurationMS, &l.ClientIP, &l.UserAgent, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) ListDeliveryLogs(ctx context.Context, webhookID uuid.UUID, limit int) ([]*models.DeliveryLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, webhook_id, event, url, success, status_code, error, payload_size, created_at
		 FROM delivery_logs WHERE webhook_id = $1 ORDER BY created_at DESC LIMIT $2`, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list delivery logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.DeliveryLog
	for rows.Next() {
		var l models.DeliveryLog
		var event string
		if err := rows.Scan(&l.ID, &l.WebhookID, &event, &l.URL, &l.Success,
			&l.StatusCode, &l.Error, &l.PayloadSize, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery log: %w", err)
		}
		l.Event = models.EventType(event)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// --- Maintenance sweep ---

func (s *PostgresStore) ExpireOverdueCredentials(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE credentials SET status = 'expired', updated_at = NOW()
		 WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue credentials: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PruneUsageLogs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM usage_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune usage logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PruneDeliveryLogs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM delivery_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune delivery logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// textArray keeps nil slices out of NOT NULL array columns.
func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
