package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/quivela/relay/pkg/eventbus"
	"github.com/quivela/relay/pkg/events"
	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

const (
	defaultMaxRetries     = 5
	defaultTimeoutSeconds = 10
)

// Manager owns subscription lifecycle and event publication. Publication is
// fire-and-forget: producers never observe delivery failures.
type Manager struct {
	persistence persistence.Persistence
	delivery    *DeliveryService
	eventBus    eventbus.EventBus
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewManager builds a webhook manager. The event bus may be nil, in which
// case fan-out runs inline instead of through a queued consumer.
func NewManager(p persistence.Persistence, delivery *DeliveryService, bus eventbus.EventBus, logger *slog.Logger) *Manager {
	return &Manager{
		persistence: p,
		delivery:    delivery,
		eventBus:    bus,
		validator:   validator.New(),
		logger:      logger.With("module", "webhook_manager"),
	}
}

func (m *Manager) CreateSubscription(ctx context.Context, sub *models.WebhookSubscription) (*models.WebhookSubscription, error) {
	sub.ID = uuid.New().String()
	sub.CreatedAt = time.Now().UTC()
	sub.UpdatedAt = sub.CreatedAt

	if sub.MaxRetries == 0 {
		sub.MaxRetries = defaultMaxRetries
	}

	if sub.TimeoutSeconds == 0 {
		sub.TimeoutSeconds = defaultTimeoutSeconds
	}

	if err := m.validator.Struct(sub); err != nil {
		return nil, err
	}

	if err := m.persistence.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

func (m *Manager) UpdateSubscription(ctx context.Context, tenantID string, sub *models.WebhookSubscription) (*models.WebhookSubscription, error) {
	existing, err := m.subscriptionForTenant(ctx, tenantID, sub.ID)
	if err != nil {
		return nil, err
	}

	sub.TenantID = existing.TenantID
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()

	if sub.MaxRetries == 0 {
		sub.MaxRetries = existing.MaxRetries
	}

	if sub.TimeoutSeconds == 0 {
		sub.TimeoutSeconds = existing.TimeoutSeconds
	}

	if err := m.validator.Struct(sub); err != nil {
		return nil, err
	}

	if err := m.persistence.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

func (m *Manager) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	if _, err := m.subscriptionForTenant(ctx, tenantID, id); err != nil {
		return err
	}

	return m.persistence.DeleteSubscription(ctx, id)
}

func (m *Manager) Subscription(ctx context.Context, tenantID, id string) (*models.WebhookSubscription, error) {
	return m.subscriptionForTenant(ctx, tenantID, id)
}

func (m *Manager) Subscriptions(ctx context.Context, tenantID string) ([]*models.WebhookSubscription, error) {
	return m.persistence.Subscriptions(ctx, tenantID)
}

// Publish captures a business event for delivery. The event is persisted
// first; fan-out happens asynchronously via the event bus when one is
// configured, inline otherwise. Returns the stored event.
func (m *Manager) Publish(ctx context.Context, tenantID, eventType string, payload map[string]any) (*models.WebhookEvent, error) {
	if tenantID == "" || eventType == "" {
		return nil, fmt.Errorf("tenant id and event type are required")
	}

	event := &models.WebhookEvent{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		EventType: eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.persistence.SaveWebhookEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("save webhook event: %w", err)
	}

	if m.eventBus == nil {
		m.FanOut(ctx, event)

		return event, nil
	}

	queued := events.WebhookEventQueued{
		BaseEvent: events.NewBaseEvent(events.WebhookEventQueuedEvent, tenantID),
		EventID:   event.ID,
		EventType: event.EventType,
	}

	if err := m.eventBus.Publish(ctx, event.ID, queued); err != nil {
		// The event is durable; the runner's retry pass cannot recover a
		// missed fan-out, so fall back to inline delivery.
		m.logger.ErrorContext(ctx, "Event bus publish failed, delivering inline", "event_id", event.ID, "error", err)
		m.FanOut(ctx, event)
	}

	return event, nil
}

// FanOut delivers one event to every matching active subscription. Each
// delivery is independent; one endpoint's failure never affects the others.
func (m *Manager) FanOut(ctx context.Context, event *models.WebhookEvent) int {
	subs, err := m.persistence.ActiveSubscriptionsForEvent(ctx, event.TenantID, event.EventType)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to resolve subscriptions", "event_id", event.ID, "error", err)

		return 0
	}

	delivered := 0

	for _, sub := range subs {
		attempt, err := m.delivery.Deliver(ctx, sub, event)
		if err != nil {
			m.logger.ErrorContext(ctx, "Delivery attempt errored", "subscription_id", sub.ID, "event_id", event.ID, "error", err)

			continue
		}

		if attempt.Success {
			delivered++
		}
	}

	return delivered
}

// RegisterHandlers wires the queued-event consumer onto the bus. Call once
// from the runner before Subscribe.
func (m *Manager) RegisterHandlers(bus eventbus.EventBus) error {
	return bus.Handle(events.WebhookEventQueuedEvent, func(ctx context.Context, raw interface{}) error {
		queued, ok := raw.(*events.WebhookEventQueued)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", raw)
		}

		event, err := m.persistence.WebhookEventByID(ctx, queued.EventID)
		if err != nil {
			return err
		}

		m.FanOut(ctx, event)

		return nil
	})
}

func (m *Manager) DeliveryLogs(ctx context.Context, tenantID, subscriptionID string, limit, offset int) ([]*models.DeliveryAttempt, error) {
	if _, err := m.subscriptionForTenant(ctx, tenantID, subscriptionID); err != nil {
		return nil, err
	}

	return m.persistence.DeliveryAttempts(ctx, subscriptionID, limit, offset)
}

func (m *Manager) FailedDeliveries(ctx context.Context, tenantID, subscriptionID string) ([]*models.DeliveryAttempt, error) {
	if _, err := m.subscriptionForTenant(ctx, tenantID, subscriptionID); err != nil {
		return nil, err
	}

	return m.persistence.FailedDeliveries(ctx, subscriptionID)
}

func (m *Manager) Stats(ctx context.Context, tenantID, subscriptionID string, from, to time.Time) (*models.DeliveryStats, error) {
	if _, err := m.subscriptionForTenant(ctx, tenantID, subscriptionID); err != nil {
		return nil, err
	}

	return m.persistence.DeliveryStats(ctx, subscriptionID, from, to)
}

// Replay re-attempts a failed delivery on demand. The attempt must belong to
// one of the tenant's subscriptions.
func (m *Manager) Replay(ctx context.Context, tenantID, attemptID string) (*models.DeliveryAttempt, error) {
	attempt, err := m.persistence.DeliveryAttemptByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	if _, err := m.subscriptionForTenant(ctx, tenantID, attempt.SubscriptionID); err != nil {
		return nil, err
	}

	return m.delivery.Replay(ctx, attemptID)
}

func (m *Manager) Events(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*models.WebhookEvent, error) {
	return m.persistence.WebhookEvents(ctx, tenantID, eventType, limit, offset)
}

// subscriptionForTenant enforces tenant scoping. A subscription owned by a
// different tenant is indistinguishable from a missing one.
func (m *Manager) subscriptionForTenant(ctx context.Context, tenantID, id string) (*models.WebhookSubscription, error) {
	sub, err := m.persistence.SubscriptionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if sub.TenantID != tenantID {
		return nil, persistence.ErrSubscriptionNotFound
	}

	return sub, nil
}
