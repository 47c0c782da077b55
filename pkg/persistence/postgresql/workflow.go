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

// WorkflowRepository handles workflow definition database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , tenant_id
  , name
  , trigger_type
  , trigger_config
  , steps
  , enabled
  , created_at
  , updated_at
`

// GetAll returns workflow definitions, optionally filtered by tenant.
func (r *WorkflowRepository) GetAll(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE ($1 = '' OR tenant_id = $1)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanWorkflows(rows)
}

// GetByID returns a workflow definition by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE id = $1
	`

	workflow, err := r.scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrWorkflowNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

// GetEnabledByTriggerType returns enabled workflows with the given trigger type.
func (r *WorkflowRepository) GetEnabledByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM workflows
		WHERE enabled AND trigger_type = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, string(triggerType))
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows by trigger type: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanWorkflows(rows)
}

// Save upserts a workflow definition.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.WorkflowDefinition) error {
	triggerConfig, err := json.Marshal(workflow.Trigger.Configuration)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger configuration: %w", err)
	}

	steps, err := json.Marshal(workflow.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	query := `
		INSERT INTO workflows (id, tenant_id, name, trigger_type, trigger_config, steps, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name
		  , trigger_type = EXCLUDED.trigger_type
		  , trigger_config = EXCLUDED.trigger_config
		  , steps = EXCLUDED.steps
		  , enabled = EXCLUDED.enabled
		  , updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.TenantID,
		workflow.Name,
		string(workflow.Trigger.Type),
		triggerConfig,
		steps,
		workflow.Enabled,
		workflow.CreatedAt.UTC(),
		workflow.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}

// Delete removes a workflow definition.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrWorkflowNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		workflow      models.WorkflowDefinition
		triggerType   string
		triggerConfig []byte
		steps         []byte
		createdAt     time.Time
		updatedAt     time.Time
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&triggerType,
		&triggerConfig,
		&steps,
		&workflow.Enabled,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	workflow.Trigger.Type = models.TriggerType(triggerType)
	workflow.CreatedAt = createdAt
	workflow.UpdatedAt = updatedAt

	err = json.Unmarshal(triggerConfig, &workflow.Trigger.Configuration)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger configuration: %w", err)
	}

	err = json.Unmarshal(steps, &workflow.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	return &workflow, nil
}

func (r *WorkflowRepository) scanWorkflows(rows *sql.Rows) ([]*models.WorkflowDefinition, error) {
	workflows := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
