package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

func TestCreateExecutionRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	execution := &models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		TenantID:   "acme",
		Status:     models.ExecutionStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	require.NoError(t, store.CreateExecution(t.Context(), execution))

	err := store.CreateExecution(t.Context(), execution)
	require.ErrorIs(t, err, persistence.ErrExecutionExists)
}

func TestClaimExecutionClearsWaitDeadline(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	deadline := time.Now().UTC().Add(time.Minute)
	execution := &models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		TenantID:   "acme",
		Status:     models.ExecutionStatusWaiting,
		StartedAt:  time.Now().UTC(),
		WaitUntil:  &deadline,
	}

	require.NoError(t, store.CreateExecution(t.Context(), execution))

	claimed, err := store.ClaimExecution(t.Context(), "exec-1", models.ExecutionStatusWaiting, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.True(t, claimed)

	stored, err := store.ExecutionByID(t.Context(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, stored.Status)
	assert.Nil(t, stored.WaitUntil)

	claimed, err = store.ClaimExecution(t.Context(), "exec-1", models.ExecutionStatusWaiting, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestWorkflowsFilteredByTenant(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	now := time.Now().UTC()

	for _, workflow := range []*models.WorkflowDefinition{
		{ID: "wf-1", TenantID: "acme", Name: "first", CreatedAt: now},
		{ID: "wf-2", TenantID: "acme", Name: "second", CreatedAt: now.Add(time.Second)},
		{ID: "wf-3", TenantID: "globex", Name: "third", CreatedAt: now},
	} {
		require.NoError(t, store.SaveWorkflow(t.Context(), workflow))
	}

	workflows, err := store.Workflows(t.Context(), "acme")
	require.NoError(t, err)
	require.Len(t, workflows, 2)
	assert.Equal(t, "wf-2", workflows[0].ID)

	workflows, err = store.Workflows(t.Context(), "globex")
	require.NoError(t, err)
	require.Len(t, workflows, 1)
}

func TestActiveSubscriptionsForEvent(t *testing.T) {
	t.Parallel()

	store := NewPersistence()

	for _, subscription := range []*models.WebhookSubscription{
		{ID: "sub-1", TenantID: "acme", Active: true, EventTypes: []string{"order.created"}},
		{ID: "sub-2", TenantID: "acme", Active: false, EventTypes: []string{"order.created"}},
		{ID: "sub-3", TenantID: "acme", Active: true, EventTypes: []string{"order.cancelled"}},
		{ID: "sub-4", TenantID: "globex", Active: true, EventTypes: []string{"order.created"}},
	} {
		require.NoError(t, store.SaveSubscription(t.Context(), subscription))
	}

	subscriptions, err := store.ActiveSubscriptionsForEvent(t.Context(), "acme", "order.created")
	require.NoError(t, err)
	require.Len(t, subscriptions, 1)
	assert.Equal(t, "sub-1", subscriptions[0].ID)
}

func TestDueRetriesOnlyLatestUndelivered(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	attempts := []*models.DeliveryAttempt{
		// Superseded by attempt 2 below.
		{ID: "a1", SubscriptionID: "sub-1", EventID: "ev-1", AttemptNumber: 1, NextRetryAt: &past},
		{ID: "a2", SubscriptionID: "sub-1", EventID: "ev-1", AttemptNumber: 2, NextRetryAt: &past},
		// Not due yet.
		{ID: "a3", SubscriptionID: "sub-1", EventID: "ev-2", AttemptNumber: 1, NextRetryAt: &future},
		// Pair already delivered.
		{ID: "a4", SubscriptionID: "sub-1", EventID: "ev-3", AttemptNumber: 1, NextRetryAt: &past},
		{ID: "a5", SubscriptionID: "sub-1", EventID: "ev-3", AttemptNumber: 2, Success: true},
		// Exhausted: no retry scheduled.
		{ID: "a6", SubscriptionID: "sub-1", EventID: "ev-4", AttemptNumber: 3},
	}
	for _, attempt := range attempts {
		require.NoError(t, store.AppendDeliveryAttempt(t.Context(), attempt))
	}

	due, err := store.DueRetries(t.Context(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "a2", due[0].ID)
}

func TestFailedDeliveriesTerminalOnly(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSubscription(t.Context(), &models.WebhookSubscription{
		ID:         "sub-1",
		TenantID:   "acme",
		Active:     true,
		MaxRetries: 2,
	}))

	next := now.Add(time.Minute)
	attempts := []*models.DeliveryAttempt{
		// Still inside the retry budget.
		{ID: "a1", SubscriptionID: "sub-1", EventID: "ev-1", AttemptNumber: 1, NextRetryAt: &next},
		// Budget exhausted, terminal failure.
		{ID: "a2", SubscriptionID: "sub-1", EventID: "ev-2", AttemptNumber: 1},
		{ID: "a3", SubscriptionID: "sub-1", EventID: "ev-2", AttemptNumber: 2},
		// Eventually delivered.
		{ID: "a4", SubscriptionID: "sub-1", EventID: "ev-3", AttemptNumber: 2},
		{ID: "a5", SubscriptionID: "sub-1", EventID: "ev-3", AttemptNumber: 3, Success: true},
	}
	for _, attempt := range attempts {
		require.NoError(t, store.AppendDeliveryAttempt(t.Context(), attempt))
	}

	failed, err := store.FailedDeliveries(t.Context(), "sub-1")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "a3", failed[0].ID)

	_, err = store.FailedDeliveries(t.Context(), "missing")
	require.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)
}

func TestWebhookEventsFilterAndPagination(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	now := time.Now().UTC()

	for i, event := range []*models.WebhookEvent{
		{ID: "ev-1", TenantID: "acme", EventType: "order.created"},
		{ID: "ev-2", TenantID: "acme", EventType: "order.created"},
		{ID: "ev-3", TenantID: "acme", EventType: "order.cancelled"},
		{ID: "ev-4", TenantID: "globex", EventType: "order.created"},
	} {
		event.CreatedAt = now.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.SaveWebhookEvent(t.Context(), event))
	}

	events, err := store.WebhookEvents(t.Context(), "acme", "order.created", 50, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "ev-2", events[0].ID)

	events, err = store.WebhookEvents(t.Context(), "acme", "", 2, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)

	events, err = store.WebhookEvents(t.Context(), "acme", "", 50, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDeliveryStatsWindow(t *testing.T) {
	t.Parallel()

	store := NewPersistence()
	now := time.Now().UTC()

	attempts := []*models.DeliveryAttempt{
		{ID: "a1", SubscriptionID: "sub-1", EventID: "ev-1", AttemptNumber: 1, Success: true, DurationMS: 100, CreatedAt: now},
		{ID: "a2", SubscriptionID: "sub-1", EventID: "ev-2", AttemptNumber: 1, DurationMS: 300, CreatedAt: now.Add(-time.Hour)},
		// Outside the window.
		{ID: "a3", SubscriptionID: "sub-1", EventID: "ev-3", AttemptNumber: 1, DurationMS: 900, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "a4", SubscriptionID: "sub-2", EventID: "ev-4", AttemptNumber: 1, DurationMS: 900, CreatedAt: now},
	}
	for _, attempt := range attempts {
		require.NoError(t, store.AppendDeliveryAttempt(t.Context(), attempt))
	}

	stats, err := store.DeliveryStats(t.Context(), "sub-1", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 1, stats.SuccessCount)
	assert.Equal(t, 1, stats.FailureCount)
	assert.InDelta(t, 200.0, stats.AvgLatencyMS, 0.01)
}
