// Package webhook implements outbound webhook delivery: signed HTTP pushes,
// bounded automatic retries and manual replay of exhausted deliveries.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

const (
	SignatureHeader = "X-Relay-Signature"
	TimestampHeader = "X-Relay-Timestamp"
	EventTypeHeader = "X-Relay-Event"
	DeliveryHeader  = "X-Relay-Delivery"

	baseRetryDelay = 30 * time.Second
	maxRetryDelay  = time.Hour
)

var ErrRetryBudgetExhausted = errors.New("delivery retry budget exhausted")

// envelope is the JSON body sent to subscriber endpoints. The signature is
// computed over these exact bytes.
type envelope struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	TenantID  string         `json:"tenant_id"`
	CreatedAt time.Time      `json:"created_at"`
	Data      map[string]any `json:"data,omitempty"`
}

// DeliveryService performs individual delivery attempts. It never retries
// in-process; failed attempts get a next_retry_at and the runner's retry
// pass picks them up later.
type DeliveryService struct {
	persistence persistence.Persistence
	logger      *slog.Logger

	now func() time.Time
}

func NewDeliveryService(p persistence.Persistence, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		persistence: p,
		logger:      logger.With("module", "webhook_delivery"),
		now:         time.Now,
	}
}

// Deliver pushes one event to one subscription and appends exactly one
// attempt row. A failed push is not an error; it is recorded on the attempt.
// The returned error covers persistence failures and an exhausted budget.
func (d *DeliveryService) Deliver(ctx context.Context, sub *models.WebhookSubscription, event *models.WebhookEvent) (*models.DeliveryAttempt, error) {
	count, err := d.persistence.AttemptCount(ctx, sub.ID, event.ID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	if count >= sub.MaxRetries {
		return nil, ErrRetryBudgetExhausted
	}

	return d.deliver(ctx, sub, event, count+1, true)
}

// Replay re-attempts a delivery that exhausted its automatic budget. It
// appends a new attempt row but never schedules further retries.
func (d *DeliveryService) Replay(ctx context.Context, attemptID string) (*models.DeliveryAttempt, error) {
	original, err := d.persistence.DeliveryAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	sub, err := d.persistence.SubscriptionByID(ctx, original.SubscriptionID)
	if err != nil {
		return nil, err
	}

	event, err := d.persistence.WebhookEventByID(ctx, original.EventID)
	if err != nil {
		return nil, err
	}

	count, err := d.persistence.AttemptCount(ctx, sub.ID, event.ID)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}

	return d.deliver(ctx, sub, event, count+1, false)
}

// ProcessDueRetries performs one delivery pass over failed attempts whose
// next_retry_at has elapsed. Returns how many attempts were made.
func (d *DeliveryService) ProcessDueRetries(ctx context.Context) (int, error) {
	due, err := d.persistence.DueRetries(ctx, d.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list due retries: %w", err)
	}

	attempted := 0

	for _, prev := range due {
		sub, err := d.persistence.SubscriptionByID(ctx, prev.SubscriptionID)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to load subscription for retry", "subscription_id", prev.SubscriptionID, "error", err)

			continue
		}

		if !sub.Active {
			continue
		}

		event, err := d.persistence.WebhookEventByID(ctx, prev.EventID)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to load event for retry", "event_id", prev.EventID, "error", err)

			continue
		}

		if _, err := d.Deliver(ctx, sub, event); err != nil {
			if errors.Is(err, ErrRetryBudgetExhausted) {
				continue
			}

			d.logger.ErrorContext(ctx, "Retry delivery failed", "subscription_id", sub.ID, "event_id", event.ID, "error", err)

			continue
		}

		attempted++
	}

	return attempted, nil
}

func (d *DeliveryService) deliver(ctx context.Context, sub *models.WebhookSubscription, event *models.WebhookEvent, attemptNumber int, scheduleRetry bool) (*models.DeliveryAttempt, error) {
	body, err := json.Marshal(envelope{
		ID:        event.ID,
		EventType: event.EventType,
		TenantID:  event.TenantID,
		CreatedAt: event.CreatedAt,
		Data:      event.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event envelope: %w", err)
	}

	now := d.now().UTC()
	attempt := &models.DeliveryAttempt{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		EventID:        event.ID,
		AttemptNumber:  attemptNumber,
		CreatedAt:      now,
	}

	start := d.now()
	status, pushErr := d.push(ctx, sub, attempt.ID, event.EventType, body, now)
	attempt.DurationMS = d.now().Sub(start).Milliseconds()

	if status > 0 {
		attempt.HTTPStatus = &status
	}

	switch {
	case pushErr != nil:
		msg := pushErr.Error()
		attempt.Error = &msg
	case status >= 200 && status < 300:
		attempt.Success = true
	default:
		msg := fmt.Sprintf("endpoint returned status %d", status)
		attempt.Error = &msg
	}

	if !attempt.Success && scheduleRetry && attemptNumber < sub.MaxRetries {
		next := now.Add(retryDelay(attemptNumber))
		attempt.NextRetryAt = &next
	}

	if err := d.persistence.AppendDeliveryAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("append delivery attempt: %w", err)
	}

	d.logger.InfoContext(ctx, "Delivery attempt recorded",
		"subscription_id", sub.ID,
		"event_id", event.ID,
		"attempt", attemptNumber,
		"success", attempt.Success,
	)

	return attempt, nil
}

func (d *DeliveryService) push(ctx context.Context, sub *models.WebhookSubscription, deliveryID, eventType string, body []byte, now time.Time) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(sub.Secret, body))
	req.Header.Set(TimestampHeader, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(EventTypeHeader, eventType)
	req.Header.Set(DeliveryHeader, deliveryID)

	for name, value := range sub.Headers {
		req.Header.Set(name, value)
	}

	client := &http.Client{Timeout: sub.Timeout()}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return resp.StatusCode, nil
}

// Sign computes the hex-encoded HMAC-SHA256 of the request body under the
// subscription secret. Subscribers verify it from the signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

// retryDelay doubles per attempt starting at the base delay, capped.
func retryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}

	return delay
}
