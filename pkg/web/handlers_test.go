package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivela/relay/pkg/actions/logaction"
	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence/memory"
	"github.com/quivela/relay/pkg/registry"
	"github.com/quivela/relay/pkg/web"
	"github.com/quivela/relay/pkg/webhook"
	"github.com/quivela/relay/pkg/workflow"
)

const testCronSecret = "cron-shared-secret"

func setupTestApp(t *testing.T) (*fiber.App, *memory.Persistence) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()

	reg := registry.NewRegistry(logger)
	reg.RegisterAction(logaction.NewActionFactory())

	executor := workflow.NewExecutor(store, reg, logger)
	repository := workflow.NewRepository(store)
	trigger := workflow.NewTriggerService(store, executor, logger)
	scheduler := workflow.NewScheduler(store, executor, logger)
	resumer := workflow.NewResumer(store, executor, logger)
	delivery := webhook.NewDeliveryService(store, logger)
	manager := webhook.NewManager(store, delivery, nil, logger)

	handlers := web.NewAPIHandlers(
		repository, trigger, scheduler, resumer,
		manager, delivery,
		store, reg, validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	app.Post("/cron/workflows", handlers.RunCron, web.CronAuth(testCronSecret))

	w := app.Group("/workflows", web.RequireTenant())
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/trigger", handlers.TriggerWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := app.Group("/executions", web.RequireTenant())
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)

	wh := app.Group("/webhooks", web.RequireTenant())
	wh.Get("/events", handlers.GetWebhookEvents)
	wh.Post("/events", handlers.PublishEvent)
	wh.Get("/", handlers.GetSubscriptions)
	wh.Post("/", handlers.CreateSubscription)
	wh.Get("/:id", handlers.GetSubscription)
	wh.Put("/:id", handlers.UpdateSubscription)
	wh.Delete("/:id", handlers.DeleteSubscription)
	wh.Get("/:id/logs", handlers.GetDeliveryLogs)
	wh.Get("/:id/stats", handlers.GetDeliveryStats)
	wh.Get("/:id/replay", handlers.GetReplayCandidates)
	wh.Post("/:id/replay", handlers.ReplayDelivery)

	return app, store
}

func doJSON(t *testing.T, app *fiber.App, method, path, tenant string, body any) *http.Response {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if tenant != "" {
		req.Header.Set(web.TenantHeader, tenant)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) web.Envelope {
	t.Helper()

	var env web.Envelope

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))

	return env
}

func TestTenantHeaderRequired(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/webhooks/", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, web.TenantHeader)

	resp = doJSON(t, app, http.MethodGet, "/workflows/", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCronEndpointAuth(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/cron/workflows", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/cron/workflows", nil)
	req.Header.Set("Authorization", "Bearer wrong-secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/cron/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary web.RunSummaryResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.True(t, summary.Success)
	assert.Zero(t, summary.Scheduled)
	assert.Zero(t, summary.Resumed)
	assert.Zero(t, summary.Retried)
}

func TestWorkflowLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	createBody := web.CreateWorkflowRequest{
		Name: "greet customers",
		Trigger: web.TriggerRequest{
			Type:          "manual",
			Configuration: map[string]any{},
		},
		Steps: []web.StepRequest{
			{Name: "hello", Type: "action", ActionType: "log", ActionConfig: map[string]any{"message": "hi"}},
			{Name: "done", Type: "end"},
		},
	}

	resp := doJSON(t, app, http.MethodPost, "/workflows/", "acme", createBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.WorkflowDefinition

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "acme", created.TenantID)
	assert.True(t, created.Enabled)

	// Visible to its tenant, invisible to others.
	resp = doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, "acme", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/workflows/"+created.ID, "other-tenant", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Trigger runs the execution synchronously to completion.
	resp = doJSON(t, app, http.MethodPost, "/workflows/"+created.ID+"/trigger", "acme",
		web.TriggerWorkflowRequest{Payload: map[string]any{"customer": "c-1"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var execution models.WorkflowExecution

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	resp = doJSON(t, app, http.MethodGet, "/executions/"+execution.ID+"/steps", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var records []models.StepExecutionRecord

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	assert.Len(t, records, 2)
}

func TestCreateWorkflowValidation(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	tests := []struct {
		name string
		body web.CreateWorkflowRequest
	}{
		{
			name: "missing steps",
			body: web.CreateWorkflowRequest{
				Name:    "no steps",
				Trigger: web.TriggerRequest{Type: "manual"},
			},
		},
		{
			name: "bad trigger type",
			body: web.CreateWorkflowRequest{
				Name:    "bad trigger",
				Trigger: web.TriggerRequest{Type: "carrier-pigeon"},
				Steps:   []web.StepRequest{{Name: "done", Type: "end"}},
			},
		},
		{
			name: "action step without action type",
			body: web.CreateWorkflowRequest{
				Name:    "incomplete action",
				Trigger: web.TriggerRequest{Type: "manual"},
				Steps:   []web.StepRequest{{Name: "broken", Type: "action"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := doJSON(t, app, http.MethodPost, "/workflows/", "acme", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSubscriptionCRUDOverHTTP(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	createBody := web.CreateSubscriptionRequest{
		URL:        "https://example.com/hooks",
		EventTypes: []string{"order.created"},
		Secret:     "super-secret-signing-key",
	}

	resp := doJSON(t, app, http.MethodPost, "/webhooks/", "acme", createBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	data, err := json.Marshal(env.Data)
	require.NoError(t, err)

	var sub models.WebhookSubscription

	require.NoError(t, json.Unmarshal(data, &sub))
	assert.NotEmpty(t, sub.ID)
	assert.True(t, sub.Active)
	assert.Equal(t, 5, sub.MaxRetries)

	resp = doJSON(t, app, http.MethodGet, "/webhooks/", "acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env = decodeEnvelope(t, resp)
	assert.True(t, env.Success)

	// Cross-tenant access reads as missing.
	resp = doJSON(t, app, http.MethodGet, "/webhooks/"+sub.ID, "intruder", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	env = decodeEnvelope(t, resp)
	assert.False(t, env.Success)

	resp = doJSON(t, app, http.MethodDelete, "/webhooks/"+sub.ID, "acme", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/webhooks/"+sub.ID, "acme", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubscriptionValidationOverHTTP(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/webhooks/", "acme", web.CreateSubscriptionRequest{
		URL:        "https://example.com/hooks",
		EventTypes: []string{"order.created"},
		Secret:     "short",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestPublishEventTriggersDelivery(t *testing.T) {
	t.Parallel()

	received := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	app, store := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/webhooks/", "acme", web.CreateSubscriptionRequest{
		URL:        server.URL,
		EventTypes: []string{"order.created"},
		Secret:     "super-secret-signing-key",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/webhooks/events", "acme", web.PublishEventRequest{
		EventType: "order.created",
		Payload:   map[string]any{"order_id": "o-9"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case <-received:
	default:
		t.Fatal("expected inline delivery to hit the endpoint")
	}

	events, err := store.WebhookEvents(t.Context(), "acme", "order.created", 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
