// Package workflow implements the automation engine: repository, step
// executor, scheduler and resumer.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
	"github.com/quivela/relay/pkg/registry"
)

// maxStepsPerRun bounds a single stepping pass. A well-formed definition
// finishes in at most len(steps) iterations, so hitting the bound means the
// branch targets loop and the execution would otherwise spin forever.
const maxStepsPerRun = 1000

// Executor drives one execution through its definition's steps until it
// completes, fails or suspends at a wait step. Step execution for one
// execution instance is strictly sequential; callers guarantee exclusive
// ownership of the execution through the status claim discipline.
type Executor struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	logger      *slog.Logger
}

func NewExecutor(persistence persistence.Persistence, registry *registry.Registry, logger *slog.Logger) *Executor {
	return &Executor{
		persistence: persistence,
		registry:    registry,
		logger:      logger.With("module", "workflow_executor"),
	}
}

// ExecuteFrom steps the execution forward from its current step index. The
// execution must be in running status. Exactly one StepExecutionRecord is
// appended per step, whatever the outcome.
func (e *Executor) ExecuteFrom(ctx context.Context, execution *models.WorkflowExecution, definition *models.WorkflowDefinition) error {
	logger := e.logger.With(
		"workflow_id", definition.ID,
		"execution_id", execution.ID,
	)

	logger.InfoContext(ctx, "Stepping execution", "from_step", execution.CurrentStep)

	for iterations := 0; execution.Status == models.ExecutionStatusRunning; iterations++ {
		if iterations >= maxStepsPerRun {
			logger.ErrorContext(ctx, "Execution exceeded step limit, aborting", "limit", maxStepsPerRun)

			e.fail(execution, fmt.Sprintf("aborted after %d steps without terminating, branch targets loop", maxStepsPerRun))
		} else if execution.CurrentStep >= len(definition.Steps) {
			e.complete(execution)
		}

		if execution.Status != models.ExecutionStatusRunning {
			err := e.persistence.UpdateExecution(ctx, execution)
			if err != nil {
				return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
			}

			break
		}

		step := definition.Steps[execution.CurrentStep]
		stepLogger := logger.With("step_index", execution.CurrentStep, "step_type", string(step.Type))

		switch step.Type {
		case models.StepTypeAction:
			err := e.executeActionStep(ctx, execution, step, stepLogger)
			if err != nil {
				return err
			}
		case models.StepTypeCondition:
			err := e.executeConditionStep(ctx, execution, step, stepLogger)
			if err != nil {
				return err
			}
		case models.StepTypeWait:
			err := e.executeWaitStep(ctx, execution, step, stepLogger)
			if err != nil {
				return err
			}
		case models.StepTypeEnd:
			err := e.appendRecord(ctx, execution, models.StepOutcomeSuccess, nil)
			if err != nil {
				return err
			}

			e.complete(execution)
		default:
			stepLogger.ErrorContext(ctx, "Unknown step type, failing execution")

			err := e.appendRecord(ctx, execution, models.StepOutcomeFailure, nil)
			if err != nil {
				return err
			}

			e.fail(execution, fmt.Sprintf("unknown step type %q", step.Type))
		}

		err := e.persistence.UpdateExecution(ctx, execution)
		if err != nil {
			return fmt.Errorf("failed to persist execution %s: %w", execution.ID, err)
		}
	}

	logger.InfoContext(ctx, "Execution pass finished", "status", string(execution.Status), "current_step", execution.CurrentStep)

	return nil
}

func (e *Executor) executeActionStep(ctx context.Context, execution *models.WorkflowExecution, step models.Step, logger *slog.Logger) error {
	action, err := e.registry.CreateAction(step.ActionType, step.ActionConfig)
	if err != nil {
		recordErr := e.appendRecord(ctx, execution, models.StepOutcomeFailure, map[string]any{"error": err.Error()})
		if recordErr != nil {
			return recordErr
		}

		e.fail(execution, err.Error())

		return nil
	}

	executionCtx := models.ExecutionContext{
		ExecutionID:    execution.ID,
		WorkflowID:     execution.WorkflowID,
		TenantID:       execution.TenantID,
		TriggerPayload: execution.TriggerPayload,
		StepOutputs:    execution.StepOutputs,
	}

	output, err := action.Execute(ctx, executionCtx, logger)
	if err != nil {
		logger.ErrorContext(ctx, "Action handler failed", "action_type", step.ActionType, "error", err)

		recordErr := e.appendRecord(ctx, execution, models.StepOutcomeFailure, map[string]any{"error": err.Error()})
		if recordErr != nil {
			return recordErr
		}

		if !step.BestEffort {
			e.fail(execution, err.Error())

			return nil
		}

		// Best-effort steps swallow the handler failure and advance.
		execution.CurrentStep++

		return nil
	}

	recordErr := e.appendRecord(ctx, execution, models.StepOutcomeSuccess, output)
	if recordErr != nil {
		return recordErr
	}

	e.mergeStepOutput(execution, step, output)
	execution.CurrentStep++

	return nil
}

func (e *Executor) executeConditionStep(ctx context.Context, execution *models.WorkflowExecution, step models.Step, logger *slog.Logger) error {
	// A malformed expression evaluates to false, so broken or partial
	// payloads take the not-matched branch instead of aborting.
	matched := step.Expression.Evaluate(execution.EvaluationContext())

	logger.InfoContext(ctx, "Condition evaluated", "matched", matched)

	err := e.appendRecord(ctx, execution, models.StepOutcomeSuccess, map[string]any{"matched": matched})
	if err != nil {
		return err
	}

	next := execution.CurrentStep + 1

	if matched && step.TrueNext != nil {
		next = *step.TrueNext
	} else if !matched && step.FalseNext != nil {
		next = *step.FalseNext
	}

	execution.CurrentStep = next

	return nil
}

func (e *Executor) executeWaitStep(ctx context.Context, execution *models.WorkflowExecution, step models.Step, logger *slog.Logger) error {
	err := e.appendRecord(ctx, execution, models.StepOutcomeSuccess, nil)
	if err != nil {
		return err
	}

	// The wait step is recorded here, once. CurrentStep moves past it so the
	// resumer continues at the following step; a condition-based wait keeps
	// WaitUntil nil and the resumer reads the expression one step back.
	execution.CurrentStep++
	execution.Status = models.ExecutionStatusWaiting

	if duration, ok := step.WaitDuration(); ok {
		until := time.Now().UTC().Add(duration)
		execution.WaitUntil = &until

		logger.InfoContext(ctx, "Execution suspended", "wait_until", until)
	} else {
		execution.WaitUntil = nil

		logger.InfoContext(ctx, "Execution suspended on condition")
	}

	return nil
}

func (e *Executor) mergeStepOutput(execution *models.WorkflowExecution, step models.Step, output map[string]any) {
	if len(output) == 0 {
		return
	}

	if execution.StepOutputs == nil {
		execution.StepOutputs = make(map[string]any)
	}

	key := step.Name
	if key == "" {
		key = fmt.Sprintf("step_%d", execution.CurrentStep)
	}

	execution.StepOutputs[key] = output
}

func (e *Executor) appendRecord(ctx context.Context, execution *models.WorkflowExecution, outcome models.StepOutcome, output map[string]any) error {
	record := &models.StepExecutionRecord{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		StepIndex:   execution.CurrentStep,
		Outcome:     outcome,
		Output:      output,
		CreatedAt:   time.Now().UTC(),
	}

	err := e.persistence.AppendStepRecord(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to append step record for execution %s: %w", execution.ID, err)
	}

	return nil
}

func (e *Executor) complete(execution *models.WorkflowExecution) {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusCompleted
	execution.CompletedAt = &now
	execution.WaitUntil = nil
}

func (e *Executor) fail(execution *models.WorkflowExecution, message string) {
	now := time.Now().UTC()
	execution.Status = models.ExecutionStatusFailed
	execution.CompletedAt = &now
	execution.WaitUntil = nil
	execution.LastError = &message
}
