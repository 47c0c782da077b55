package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

// ExecutionRepository handles workflow execution and step record operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , tenant_id
  , status
  , current_step
  , trigger_payload
  , step_outputs
  , started_at
  , completed_at
  , wait_until
  , last_error
`

// Create inserts a new execution row.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerPayload, stepOutputs, err := marshalExecutionJSON(execution)
	if err != nil {
		return err
	}

	// ON CONFLICT DO NOTHING turns a duplicate insert into an affected-row
	// count of zero; scheduled occurrences use deterministic IDs, so the
	// loser of a concurrent scheduling race surfaces here.
	query := `
		INSERT INTO workflow_executions
			(id, workflow_id, tenant_id, status, current_step, trigger_payload, step_outputs, started_at, completed_at, wait_until, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.TenantID,
		string(execution.Status),
		execution.CurrentStep,
		triggerPayload,
		stepOutputs,
		execution.StartedAt.UTC(),
		execution.CompletedAt,
		execution.WaitUntil,
		execution.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrExecutionExists
	}

	return nil
}

// Update persists the mutable execution fields.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.WorkflowExecution) error {
	triggerPayload, stepOutputs, err := marshalExecutionJSON(execution)
	if err != nil {
		return err
	}

	query := `
		UPDATE workflow_executions SET
			status = $2
		  , current_step = $3
		  , trigger_payload = $4
		  , step_outputs = $5
		  , completed_at = $6
		  , wait_until = $7
		  , last_error = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID,
		string(execution.Status),
		execution.CurrentStep,
		triggerPayload,
		stepOutputs,
		execution.CompletedAt,
		execution.WaitUntil,
		execution.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.ErrExecutionNotFound
	}

	return nil
}

// GetByID returns an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

// GetByWorkflow returns executions for a workflow, newest first.
func (r *ExecutionRepository) GetByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, query, workflowID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanExecutions(rows)
}

// GetLatestForWorkflow returns the most recently started execution, nil when
// the workflow never ran.
func (r *ExecutionRepository) GetLatestForWorkflow(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	execution, err := r.scanExecution(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan latest execution: %w", err)
	}

	return execution, nil
}

// GetWaiting returns all executions currently parked in waiting status.
func (r *ExecutionRepository) GetWaiting(ctx context.Context) ([]*models.WorkflowExecution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE status = 'waiting'
		ORDER BY started_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting executions: %w", err)
	}

	defer r.closeRows(ctx, rows)

	return r.scanExecutions(rows)
}

// Claim performs the conditional status transition. The WHERE clause carries
// the expected status, so the affected-row count decides who won when several
// processes race on the same execution.
func (r *ExecutionRepository) Claim(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	query := `
		UPDATE workflow_executions
		SET status = $3, wait_until = NULL
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("failed to claim execution: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected == 1, nil
}

// AppendStepRecord inserts one step execution record.
func (r *ExecutionRepository) AppendStepRecord(ctx context.Context, record *models.StepExecutionRecord) error {
	output, err := json.Marshal(record.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	query := `
		INSERT INTO step_execution_records (id, execution_id, step_index, outcome, output, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.ExecutionID,
		record.StepIndex,
		string(record.Outcome),
		output,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append step record: %w", err)
	}

	return nil
}

// GetStepRecords returns the audit trail of an execution in append order.
func (r *ExecutionRepository) GetStepRecords(ctx context.Context, executionID string) ([]*models.StepExecutionRecord, error) {
	query := `
		SELECT id, execution_id, step_index, outcome, output, created_at
		FROM step_execution_records
		WHERE execution_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step records: %w", err)
	}

	defer r.closeRows(ctx, rows)

	records := make([]*models.StepExecutionRecord, 0)

	for rows.Next() {
		var (
			record  models.StepExecutionRecord
			outcome string
			output  []byte
		)

		err = rows.Scan(&record.ID, &record.ExecutionID, &record.StepIndex, &outcome, &output, &record.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}

		record.Outcome = models.StepOutcome(outcome)

		err = json.Unmarshal(output, &record.Output)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
		}

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating step records: %w", err)
	}

	return records, nil
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*models.WorkflowExecution, error) {
	var (
		execution      models.WorkflowExecution
		status         string
		triggerPayload []byte
		stepOutputs    []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TenantID,
		&status,
		&execution.CurrentStep,
		&triggerPayload,
		&stepOutputs,
		&execution.StartedAt,
		&execution.CompletedAt,
		&execution.WaitUntil,
		&execution.LastError,
	)
	if err != nil {
		return nil, err
	}

	execution.Status = models.ExecutionStatus(status)

	err = json.Unmarshal(triggerPayload, &execution.TriggerPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger payload: %w", err)
	}

	err = json.Unmarshal(stepOutputs, &execution.StepOutputs)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal step outputs: %w", err)
	}

	return &execution, nil
}

func (r *ExecutionRepository) scanExecutions(rows *sql.Rows) ([]*models.WorkflowExecution, error) {
	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := r.scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func marshalExecutionJSON(execution *models.WorkflowExecution) (triggerPayload, stepOutputs []byte, err error) {
	triggerPayload, err = json.Marshal(orEmptyMap(execution.TriggerPayload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	stepOutputs, err = json.Marshal(orEmptyMap(execution.StepOutputs))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal step outputs: %w", err)
	}

	return triggerPayload, stepOutputs, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
