package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSubscription(t *testing.T, store *memory.Persistence, url string, maxRetries int) *models.WebhookSubscription {
	t.Helper()

	sub := &models.WebhookSubscription{
		ID:             uuid.New().String(),
		TenantID:       "acme",
		URL:            url,
		EventTypes:     []string{"order.created"},
		Secret:         "super-secret-signing-key",
		Active:         true,
		MaxRetries:     maxRetries,
		TimeoutSeconds: 5,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveSubscription(t.Context(), sub))

	return sub
}

func testEvent(t *testing.T, store *memory.Persistence) *models.WebhookEvent {
	t.Helper()

	event := &models.WebhookEvent{
		ID:        uuid.New().String(),
		TenantID:  "acme",
		EventType: "order.created",
		Payload:   map[string]any{"order_id": "o-123", "total": 99.5},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.SaveWebhookEvent(t.Context(), event))

	return event
}

func TestDeliverSuccess(t *testing.T) {
	t.Parallel()

	var gotBody []byte

	var gotHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := memory.NewPersistence()
	service := NewDeliveryService(store, testLogger())
	sub := testSubscription(t, store, server.URL, 3)
	sub.Headers = map[string]string{"X-Custom": "static-value"}
	require.NoError(t, store.SaveSubscription(t.Context(), sub))
	event := testEvent(t, store)

	attempt, err := service.Deliver(t.Context(), sub, event)
	require.NoError(t, err)

	assert.True(t, attempt.Success)
	assert.Equal(t, 1, attempt.AttemptNumber)
	require.NotNil(t, attempt.HTTPStatus)
	assert.Equal(t, http.StatusOK, *attempt.HTTPStatus)
	assert.Nil(t, attempt.NextRetryAt)
	assert.Nil(t, attempt.Error)

	// Signature verifies over the exact body bytes.
	assert.Equal(t, Sign(sub.Secret, gotBody), gotHeader.Get(SignatureHeader))
	assert.Equal(t, "order.created", gotHeader.Get(EventTypeHeader))
	assert.Equal(t, attempt.ID, gotHeader.Get(DeliveryHeader))
	assert.NotEmpty(t, gotHeader.Get(TimestampHeader))
	assert.Equal(t, "static-value", gotHeader.Get("X-Custom"))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))

	var body envelope

	require.NoError(t, json.Unmarshal(gotBody, &body))
	assert.Equal(t, event.ID, body.ID)
	assert.Equal(t, event.EventType, body.EventType)
	assert.Equal(t, "o-123", body.Data["order_id"])
}

func TestDeliveryRetryBound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := memory.NewPersistence()
	service := NewDeliveryService(store, testLogger())
	sub := testSubscription(t, store, server.URL, 3)
	event := testEvent(t, store)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return base }

	first, err := service.Deliver(t.Context(), sub, event)
	require.NoError(t, err)
	assert.False(t, first.Success)
	assert.Equal(t, 1, first.AttemptNumber)
	require.NotNil(t, first.NextRetryAt)
	assert.Equal(t, base.Add(30*time.Second), *first.NextRetryAt)

	// Each retry pass happens after the scheduled delay.
	service.now = func() time.Time { return base.Add(31 * time.Second) }
	retried, err := service.ProcessDueRetries(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	attempts, err := store.DeliveryAttempts(t.Context(), sub.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	second := attempts[0]
	assert.Equal(t, 2, second.AttemptNumber)
	require.NotNil(t, second.NextRetryAt)
	assert.Equal(t, base.Add(31*time.Second).Add(time.Minute), *second.NextRetryAt)

	// Final attempt of the budget carries no retry schedule.
	service.now = func() time.Time { return base.Add(2 * time.Minute) }
	retried, err = service.ProcessDueRetries(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	attempts, err = store.DeliveryAttempts(t.Context(), sub.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	third := attempts[0]
	assert.Equal(t, 3, third.AttemptNumber)
	assert.Nil(t, third.NextRetryAt)
	assert.True(t, third.Exhausted(sub.MaxRetries))

	// Budget spent: no more due retries and direct delivery refuses.
	service.now = func() time.Time { return base.Add(time.Hour) }
	retried, err = service.ProcessDueRetries(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, retried)

	_, err = service.Deliver(t.Context(), sub, event)
	assert.ErrorIs(t, err, ErrRetryBudgetExhausted)

	assert.Equal(t, int32(3), calls.Load())
}

func TestReplayOutsideBudget(t *testing.T) {
	t.Parallel()

	var respond atomic.Int32

	respond.Store(http.StatusInternalServerError)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(int(respond.Load()))
	}))
	defer server.Close()

	store := memory.NewPersistence()
	service := NewDeliveryService(store, testLogger())
	sub := testSubscription(t, store, server.URL, 1)
	event := testEvent(t, store)

	exhausted, err := service.Deliver(t.Context(), sub, event)
	require.NoError(t, err)
	assert.False(t, exhausted.Success)
	assert.Nil(t, exhausted.NextRetryAt)
	assert.True(t, exhausted.Exhausted(sub.MaxRetries))

	// Replay appends a fresh attempt even though the budget is spent, and a
	// failed replay never schedules an automatic retry.
	replayFailed, err := service.Replay(t.Context(), exhausted.ID)
	require.NoError(t, err)
	assert.False(t, replayFailed.Success)
	assert.Equal(t, 2, replayFailed.AttemptNumber)
	assert.Nil(t, replayFailed.NextRetryAt)

	respond.Store(http.StatusOK)

	replayOK, err := service.Replay(t.Context(), exhausted.ID)
	require.NoError(t, err)
	assert.True(t, replayOK.Success)
	assert.Equal(t, 3, replayOK.AttemptNumber)

	count, err := store.AttemptCount(t.Context(), sub.ID, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestDeliverNetworkFailure(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	service := NewDeliveryService(store, testLogger())
	sub := testSubscription(t, store, "http://127.0.0.1:1", 3)
	event := testEvent(t, store)

	attempt, err := service.Deliver(t.Context(), sub, event)
	require.NoError(t, err)

	assert.False(t, attempt.Success)
	assert.Nil(t, attempt.HTTPStatus)
	require.NotNil(t, attempt.Error)
	assert.NotNil(t, attempt.NextRetryAt)
}

func TestRetryDelayCurve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 30 * time.Second},
		{attempt: 2, want: time.Minute},
		{attempt: 3, want: 2 * time.Minute},
		{attempt: 6, want: 16 * time.Minute},
		{attempt: 7, want: 32 * time.Minute},
		{attempt: 8, want: time.Hour},
		{attempt: 20, want: time.Hour},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}
