package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

// Resumer continues executions parked in waiting status once their wait
// condition has elapsed. Claiming goes through the conditional status
// transition in the store: when two passes race on the same execution exactly
// one wins the waiting-to-running swap and the other skips it silently.
type Resumer struct {
	persistence persistence.Persistence
	executor    *Executor
	logger      *slog.Logger
	now         func() time.Time
}

func NewResumer(persistence persistence.Persistence, executor *Executor, logger *slog.Logger) *Resumer {
	return &Resumer{
		persistence: persistence,
		executor:    executor,
		logger:      logger.With("module", "execution_resumer"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ResumeWaitingExecutions claims and resumes every due waiting execution.
func (r *Resumer) ResumeWaitingExecutions(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	waiting, err := r.persistence.WaitingExecutions(ctx)
	if err != nil {
		return summary, err
	}

	now := r.now()

	for _, execution := range waiting {
		logger := r.logger.With("execution_id", execution.ID, "workflow_id", execution.WorkflowID)

		definition, err := r.persistence.WorkflowByID(ctx, execution.WorkflowID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to fetch workflow for waiting execution", "error", err)

			summary.Failed++

			continue
		}

		if !r.isDue(execution, definition, now) {
			summary.Skipped++

			continue
		}

		claimed, err := r.persistence.ClaimExecution(ctx, execution.ID, models.ExecutionStatusWaiting, models.ExecutionStatusRunning)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to claim execution", "error", err)

			summary.Failed++

			continue
		}

		if !claimed {
			// Another process got there first; not an error.
			summary.Skipped++

			continue
		}

		execution.Status = models.ExecutionStatusRunning
		execution.WaitUntil = nil
		summary.Resumed++

		err = r.executor.ExecuteFrom(ctx, execution, definition)
		if err != nil {
			logger.ErrorContext(ctx, "Resumed execution pass failed", "error", err)

			summary.Failed++

			continue
		}

		summary.Succeeded++
	}

	return summary, nil
}

// isDue decides whether a waiting execution may resume. Time-based waits
// compare wait_until against now; condition-based waits re-evaluate the wait
// expression of the step the execution suspended at (one behind the cursor)
// against the current execution context.
func (r *Resumer) isDue(execution *models.WorkflowExecution, definition *models.WorkflowDefinition, now time.Time) bool {
	if execution.WaitUntil != nil {
		return !execution.WaitUntil.After(now)
	}

	waitIndex := execution.CurrentStep - 1
	if waitIndex < 0 || waitIndex >= len(definition.Steps) {
		return false
	}

	waitStep := definition.Steps[waitIndex]
	if waitStep.Type != models.StepTypeWait || waitStep.WaitExpression == nil {
		return false
	}

	return waitStep.WaitExpression.Evaluate(execution.EvaluationContext())
}
