package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

// WebhookRepository handles subscription, event and delivery-attempt operations.
type WebhookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWebhookRepository creates a new webhook repository.
func NewWebhookRepository(db *sql.DB, logger *slog.Logger) *WebhookRepository {
	return &WebhookRepository{db: db, logger: logger}
}

const subscriptionColumns = `
	id
  , tenant_id
  , url
  , event_types
  , secret
  , active
  , max_retries
  , timeout_seconds
  , allowed_ips
  , headers
  , created_at
  , updated_at
`

// GetSubscriptions returns subscriptions, optionally filtered by tenant, newest first.
func (r *WebhookRepository) GetSubscriptions(ctx context.Context, tenantID string) ([]*models.WebhookSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanSubscriptions(rows)
}

// GetSubscriptionByID returns one subscription.
func (r *WebhookRepository) GetSubscriptionByID(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`

	subscription, err := r.scanSubscription(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSubscriptionNotFound
		}

		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}

	return subscription, nil
}

// GetActiveSubscriptionsForEvent returns active subscriptions of a tenant whose
// event set contains the given type.
func (r *WebhookRepository) GetActiveSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]*models.WebhookSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM webhook_subscriptions
		WHERE tenant_id = $1 AND active AND event_types @> to_jsonb(ARRAY[$2]::text[])
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions for event: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanSubscriptions(rows)
}

// SaveSubscription upserts a subscription.
func (r *WebhookRepository) SaveSubscription(ctx context.Context, subscription *models.WebhookSubscription) error {
	eventTypes, err := json.Marshal(subscription.EventTypes)
	if err != nil {
		return fmt.Errorf("failed to marshal event types: %w", err)
	}

	allowedIPs, err := json.Marshal(subscription.AllowedIPs)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed IPs: %w", err)
	}

	headers, err := json.Marshal(subscription.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}

	query := `
		INSERT INTO webhook_subscriptions
			(id, tenant_id, url, event_types, secret, active, max_retries, timeout_seconds, allowed_ips, headers, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url
		  , event_types = EXCLUDED.event_types
		  , secret = EXCLUDED.secret
		  , active = EXCLUDED.active
		  , max_retries = EXCLUDED.max_retries
		  , timeout_seconds = EXCLUDED.timeout_seconds
		  , allowed_ips = EXCLUDED.allowed_ips
		  , headers = EXCLUDED.headers
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		subscription.ID,
		subscription.TenantID,
		subscription.URL,
		eventTypes,
		subscription.Secret,
		subscription.Active,
		subscription.MaxRetries,
		subscription.TimeoutSeconds,
		allowedIPs,
		headers,
		subscription.CreatedAt.UTC(),
		subscription.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}

	return nil
}

// DeleteSubscription removes a subscription.
func (r *WebhookRepository) DeleteSubscription(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM webhook_subscriptions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrSubscriptionNotFound
	}

	return nil
}

// SaveEvent inserts a webhook event. Events are immutable; there is no update path.
func (r *WebhookRepository) SaveEvent(ctx context.Context, event *models.WebhookEvent) error {
	payload, err := json.Marshal(orEmptyMap(event.Payload))
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	query := `
		INSERT INTO webhook_events (id, tenant_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query, event.ID, event.TenantID, event.EventType, payload, event.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save webhook event: %w", err)
	}

	return nil
}

// GetEventByID returns one webhook event.
func (r *WebhookRepository) GetEventByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	query := `SELECT id, tenant_id, event_type, payload, created_at FROM webhook_events WHERE id = $1`

	var (
		event   models.WebhookEvent
		payload []byte
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(&event.ID, &event.TenantID, &event.EventType, &payload, &event.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrEventNotFound
		}

		return nil, fmt.Errorf("failed to scan webhook event: %w", err)
	}

	err = json.Unmarshal(payload, &event.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
	}

	return &event, nil
}

// GetEvents returns the raw event log, newest first.
func (r *WebhookRepository) GetEvents(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*models.WebhookEvent, error) {
	query := `
		SELECT id, tenant_id, event_type, payload, created_at
		FROM webhook_events
		WHERE ($1 = '' OR tenant_id = $1) AND ($2 = '' OR event_type = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, query, tenantID, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook events: %w", err)
	}

	defer r.closeRows(ctx, rows)

	events := make([]*models.WebhookEvent, 0)

	for rows.Next() {
		var (
			event   models.WebhookEvent
			payload []byte
		)

		err = rows.Scan(&event.ID, &event.TenantID, &event.EventType, &payload, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}

		err = json.Unmarshal(payload, &event.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event payload: %w", err)
		}

		events = append(events, &event)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}

	return events, nil
}

const attemptColumns = `
	id
  , subscription_id
  , event_id
  , attempt_number
  , http_status
  , success
  , error
  , duration_ms
  , next_retry_at
  , created_at
`

// AppendAttempt inserts one delivery attempt row.
func (r *WebhookRepository) AppendAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	query := `
		INSERT INTO delivery_attempts
			(id, subscription_id, event_id, attempt_number, http_status, success, error, duration_ms, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.SubscriptionID,
		attempt.EventID,
		attempt.AttemptNumber,
		attempt.HTTPStatus,
		attempt.Success,
		attempt.Error,
		attempt.DurationMS,
		attempt.NextRetryAt,
		attempt.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append delivery attempt: %w", err)
	}

	return nil
}

// GetAttemptByID returns one delivery attempt.
func (r *WebhookRepository) GetAttemptByID(ctx context.Context, id string) (*models.DeliveryAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM delivery_attempts WHERE id = $1`

	attempt, err := r.scanAttempt(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrAttemptNotFound
		}

		return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
	}

	return attempt, nil
}

// GetAttempts returns the delivery log of a subscription, newest first.
func (r *WebhookRepository) GetAttempts(ctx context.Context, subscriptionID string, limit, offset int) ([]*models.DeliveryAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM delivery_attempts
		WHERE subscription_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, query, subscriptionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery attempts: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanAttempts(rows)
}

// CountAttempts counts the attempts already made for a (subscription, event) pair.
func (r *WebhookRepository) CountAttempts(ctx context.Context, subscriptionID, eventID string) (int, error) {
	var count int

	query := `SELECT COUNT(*) FROM delivery_attempts WHERE subscription_id = $1 AND event_id = $2`

	err := r.db.QueryRowContext(ctx, query, subscriptionID, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count delivery attempts: %w", err)
	}

	return count, nil
}

// GetFailedDeliveries returns exhausted failed attempts of a subscription,
// newest first. An attempt qualifies when it is the latest of its pair, the
// pair never succeeded, and the retry budget is spent.
func (r *WebhookRepository) GetFailedDeliveries(ctx context.Context, subscriptionID string) ([]*models.DeliveryAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM delivery_attempts a
		WHERE a.subscription_id = $1
		  AND NOT a.success
		  AND a.attempt_number >= (SELECT max_retries FROM webhook_subscriptions WHERE id = $1)
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_attempts later
			WHERE later.subscription_id = a.subscription_id
			  AND later.event_id = a.event_id
			  AND later.attempt_number > a.attempt_number
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_attempts ok
			WHERE ok.subscription_id = a.subscription_id
			  AND ok.event_id = a.event_id
			  AND ok.success
		  )
		ORDER BY a.created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed deliveries: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanAttempts(rows)
}

// GetDueRetries returns failed attempts whose backoff delay has elapsed and
// which are still the latest attempt of an undelivered pair.
func (r *WebhookRepository) GetDueRetries(ctx context.Context, now time.Time) ([]*models.DeliveryAttempt, error) {
	query := `
		SELECT ` + attemptColumns + `
		FROM delivery_attempts a
		WHERE NOT a.success
		  AND a.next_retry_at IS NOT NULL
		  AND a.next_retry_at <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_attempts later
			WHERE later.subscription_id = a.subscription_id
			  AND later.event_id = a.event_id
			  AND later.attempt_number > a.attempt_number
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM delivery_attempts ok
			WHERE ok.subscription_id = a.subscription_id
			  AND ok.event_id = a.event_id
			  AND ok.success
		  )
		ORDER BY a.next_retry_at
	`

	rows, err := r.db.QueryContext(ctx, query, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query due retries: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanAttempts(rows)
}

// GetStats aggregates attempt counts and latency over a time window.
func (r *WebhookRepository) GetStats(ctx context.Context, subscriptionID string, from, to time.Time) (*models.DeliveryStats, error) {
	query := `
		SELECT
			COUNT(*)
		  , COUNT(*) FILTER (WHERE success)
		  , COUNT(*) FILTER (WHERE NOT success)
		  , COALESCE(AVG(duration_ms), 0)
		FROM delivery_attempts
		WHERE subscription_id = $1 AND created_at BETWEEN $2 AND $3
	`

	stats := &models.DeliveryStats{
		WindowFromUnix: from.Unix(),
		WindowToUnix:   to.Unix(),
	}

	err := r.db.QueryRowContext(ctx, query, subscriptionID, from.UTC(), to.UTC()).Scan(
		&stats.TotalAttempts,
		&stats.SuccessCount,
		&stats.FailureCount,
		&stats.AvgLatencyMS,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery stats: %w", err)
	}

	return stats, nil
}

func (r *WebhookRepository) scanSubscription(row rowScanner) (*models.WebhookSubscription, error) {
	var (
		subscription models.WebhookSubscription
		eventTypes   []byte
		allowedIPs   []byte
		headers      []byte
	)

	err := row.Scan(
		&subscription.ID,
		&subscription.TenantID,
		&subscription.URL,
		&eventTypes,
		&subscription.Secret,
		&subscription.Active,
		&subscription.MaxRetries,
		&subscription.TimeoutSeconds,
		&allowedIPs,
		&headers,
		&subscription.CreatedAt,
		&subscription.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(eventTypes, &subscription.EventTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event types: %w", err)
	}

	err = json.Unmarshal(allowedIPs, &subscription.AllowedIPs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed IPs: %w", err)
	}

	err = json.Unmarshal(headers, &subscription.Headers)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}

	return &subscription, nil
}

func (r *WebhookRepository) scanSubscriptions(rows *sql.Rows) ([]*models.WebhookSubscription, error) {
	subscriptions := make([]*models.WebhookSubscription, 0)

	for rows.Next() {
		subscription, err := r.scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}

		subscriptions = append(subscriptions, subscription)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subscriptions, nil
}

func (r *WebhookRepository) scanAttempt(row rowScanner) (*models.DeliveryAttempt, error) {
	var attempt models.DeliveryAttempt

	err := row.Scan(
		&attempt.ID,
		&attempt.SubscriptionID,
		&attempt.EventID,
		&attempt.AttemptNumber,
		&attempt.HTTPStatus,
		&attempt.Success,
		&attempt.Error,
		&attempt.DurationMS,
		&attempt.NextRetryAt,
		&attempt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &attempt, nil
}

func (r *WebhookRepository) scanAttempts(rows *sql.Rows) ([]*models.DeliveryAttempt, error) {
	attempts := make([]*models.DeliveryAttempt, 0)

	for rows.Next() {
		attempt, err := r.scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery attempt: %w", err)
		}

		attempts = append(attempts, attempt)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating delivery attempts: %w", err)
	}

	return attempts, nil
}

func (r *WebhookRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
