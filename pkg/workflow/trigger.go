package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

// TriggerService starts executions for direct triggers: the manual trigger
// endpoint and event-triggered workflows fed by the intake.
type TriggerService struct {
	persistence persistence.Persistence
	executor    *Executor
	logger      *slog.Logger
}

func NewTriggerService(persistence persistence.Persistence, executor *Executor, logger *slog.Logger) *TriggerService {
	return &TriggerService{
		persistence: persistence,
		executor:    executor,
		logger:      logger.With("module", "workflow_trigger"),
	}
}

// TriggerWorkflow creates a running execution at step zero with the given
// payload and synchronously drives it to its first suspension or terminal
// state.
func (t *TriggerService) TriggerWorkflow(ctx context.Context, workflowID string, payload map[string]any) (*models.WorkflowExecution, error) {
	definition, err := t.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !definition.Enabled {
		return nil, fmt.Errorf("workflow %s is disabled", workflowID)
	}

	execution := &models.WorkflowExecution{
		ID:             uuid.New().String(),
		WorkflowID:     definition.ID,
		TenantID:       definition.TenantID,
		Status:         models.ExecutionStatusRunning,
		CurrentStep:    0,
		TriggerPayload: payload,
		StartedAt:      time.Now().UTC(),
	}

	err = t.persistence.CreateExecution(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	err = t.executor.ExecuteFrom(ctx, execution, definition)
	if err != nil {
		return execution, err
	}

	return execution, nil
}

// TriggerForEvent starts every enabled event-triggered workflow of the tenant
// subscribed to the given event type. One workflow's failure does not stop the
// others.
func (t *TriggerService) TriggerForEvent(ctx context.Context, tenantID, eventType string, payload map[string]any) int {
	workflows, err := t.persistence.EnabledWorkflowsByTriggerType(ctx, models.TriggerTypeEvent)
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to list event-triggered workflows", "error", err)

		return 0
	}

	started := 0

	for _, definition := range workflows {
		if definition.TenantID != tenantID || definition.EventType() != eventType {
			continue
		}

		_, err := t.TriggerWorkflow(ctx, definition.ID, payload)
		if err != nil {
			t.logger.ErrorContext(ctx, "Failed to trigger workflow for event",
				"workflow_id", definition.ID, "event_type", eventType, "error", err)

			continue
		}

		started++
	}

	return started
}
