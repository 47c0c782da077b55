package webhook

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
	"github.com/quivela/relay/pkg/persistence/memory"
)

func newTestManager(store *memory.Persistence) *Manager {
	delivery := NewDeliveryService(store, testLogger())

	return NewManager(store, delivery, nil, testLogger())
}

func TestFanOutIsolation(t *testing.T) {
	t.Parallel()

	var goodCalls, badCalls atomic.Int32

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		goodCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		badCalls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	store := memory.NewPersistence()
	manager := newTestManager(store)

	goodSub := testSubscription(t, store, good.URL, 3)
	badSub := testSubscription(t, store, bad.URL, 3)

	event, err := manager.Publish(t.Context(), "acme", "order.created", map[string]any{"order_id": "o-1"})
	require.NoError(t, err)
	require.NotNil(t, event)

	// Both endpoints got their own independent attempt.
	assert.Equal(t, int32(1), goodCalls.Load())
	assert.Equal(t, int32(1), badCalls.Load())

	goodAttempts, err := store.DeliveryAttempts(t.Context(), goodSub.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, goodAttempts, 1)
	assert.True(t, goodAttempts[0].Success)

	badAttempts, err := store.DeliveryAttempts(t.Context(), badSub.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, badAttempts, 1)
	assert.False(t, badAttempts[0].Success)
	assert.NotNil(t, badAttempts[0].NextRetryAt)
}

func TestPublishIgnoresInactiveAndUnsubscribed(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := memory.NewPersistence()
	manager := newTestManager(store)

	inactive := testSubscription(t, store, server.URL, 3)
	inactive.Active = false
	require.NoError(t, store.SaveSubscription(t.Context(), inactive))

	otherType := testSubscription(t, store, server.URL, 3)
	otherType.EventTypes = []string{"order.cancelled"}
	require.NoError(t, store.SaveSubscription(t.Context(), otherType))

	_, err := manager.Publish(t.Context(), "acme", "order.created", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(0), calls.Load())
}

func TestCreateSubscriptionDefaultsAndValidation(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	manager := newTestManager(store)

	created, err := manager.CreateSubscription(t.Context(), &models.WebhookSubscription{
		TenantID:   "acme",
		URL:        "https://example.com/hooks",
		EventTypes: []string{"order.created"},
		Secret:     "super-secret-signing-key",
		Active:     true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 5, created.MaxRetries)
	assert.Equal(t, 10, created.TimeoutSeconds)

	_, err = manager.CreateSubscription(t.Context(), &models.WebhookSubscription{
		TenantID:   "acme",
		URL:        "https://example.com/hooks",
		EventTypes: []string{"order.created"},
		Secret:     "too-short",
	})
	assert.Error(t, err)

	_, err = manager.CreateSubscription(t.Context(), &models.WebhookSubscription{
		TenantID:   "acme",
		URL:        "not a url",
		EventTypes: []string{"order.created"},
		Secret:     "super-secret-signing-key",
	})
	assert.Error(t, err)
}

func TestSubscriptionTenantScoping(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	manager := newTestManager(store)

	sub := testSubscription(t, store, "https://example.com/hooks", 3)

	found, err := manager.Subscription(t.Context(), "acme", sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)

	_, err = manager.Subscription(t.Context(), "other-tenant", sub.ID)
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)

	err = manager.DeleteSubscription(t.Context(), "other-tenant", sub.ID)
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)

	_, err = manager.DeliveryLogs(t.Context(), "other-tenant", sub.ID, 10, 0)
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)
}

func TestReplayTenantScoping(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := memory.NewPersistence()
	manager := newTestManager(store)

	sub := testSubscription(t, store, server.URL, 1)
	event := testEvent(t, store)

	attempt, err := manager.delivery.Deliver(t.Context(), sub, event)
	require.NoError(t, err)

	_, err = manager.Replay(t.Context(), "other-tenant", attempt.ID)
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)

	replayed, err := manager.Replay(t.Context(), "acme", attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, replayed.AttemptNumber)
}

func TestUpdateSubscriptionPreservesOwnership(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	manager := newTestManager(store)

	sub := testSubscription(t, store, "https://example.com/hooks", 3)

	updated, err := manager.UpdateSubscription(t.Context(), "acme", &models.WebhookSubscription{
		ID:         sub.ID,
		TenantID:   "someone-else",
		URL:        "https://example.com/hooks/v2",
		EventTypes: []string{"order.created", "order.cancelled"},
		Secret:     "rotated-secret-signing-key",
		Active:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, "acme", updated.TenantID)
	assert.Equal(t, "https://example.com/hooks/v2", updated.URL)
	assert.Equal(t, sub.CreatedAt, updated.CreatedAt)
	assert.Equal(t, sub.MaxRetries, updated.MaxRetries)
}
