package models

import (
	"slices"
	"time"
)

// WebhookSubscription is one tenant-scoped outbound webhook endpoint together
// with its delivery policy.
type WebhookSubscription struct {
	ID             string            `json:"id"`
	TenantID       string            `json:"tenant_id"       validate:"required"`
	URL            string            `json:"url"             validate:"required,url"`
	EventTypes     []string          `json:"event_types"     validate:"required,min=1,dive,required"`
	Secret         string            `json:"secret"          validate:"required,min=16"`
	Active         bool              `json:"active"`
	MaxRetries     int               `json:"max_retries"     validate:"min=1,max=10"`
	TimeoutSeconds int               `json:"timeout_seconds" validate:"min=1,max=120"`
	AllowedIPs     []string          `json:"allowed_ips,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SubscribedTo reports whether the subscription wants events of the given type.
func (s *WebhookSubscription) SubscribedTo(eventType string) bool {
	return slices.Contains(s.EventTypes, eventType)
}

// Timeout returns the per-delivery HTTP timeout.
func (s *WebhookSubscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// WebhookEvent is an internal business event captured for delivery fan-out.
// Immutable once created.
type WebhookEvent struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeliveryAttempt is one HTTP push of one event to one subscription. Attempts
// are append-only; the set of attempts for a (subscription, event) pair forms
// that pair's delivery history.
//
// HTTPStatus is nil when the request never produced a response (network error,
// timeout). NextRetryAt is set on failed attempts that still have retry budget
// left; the runner's retry pass picks those up.
type DeliveryAttempt struct {
	ID             string     `json:"id"`
	SubscriptionID string     `json:"subscription_id"`
	EventID        string     `json:"event_id"`
	AttemptNumber  int        `json:"attempt_number"`
	HTTPStatus     *int       `json:"http_status,omitempty"`
	Success        bool       `json:"success"`
	Error          *string    `json:"error,omitempty"`
	DurationMS     int64      `json:"duration_ms"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Exhausted reports whether this failed attempt closed the automatic retry
// budget for its (subscription, event) pair.
func (a *DeliveryAttempt) Exhausted(maxRetries int) bool {
	return !a.Success && a.AttemptNumber >= maxRetries
}

// DeliveryStats aggregates attempt counts for a subscription over a window.
type DeliveryStats struct {
	TotalAttempts  int     `json:"total_attempts"`
	SuccessCount   int     `json:"success_count"`
	FailureCount   int     `json:"failure_count"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	WindowFromUnix int64   `json:"window_from_unix"`
	WindowToUnix   int64   `json:"window_to_unix"`
}
