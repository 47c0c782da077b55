package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further stepping can happen for this status.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// WorkflowExecution is one run instance of a workflow definition. It is created
// by the scheduler or a direct trigger and mutated only by the executor and the
// resumer. Terminal executions are retained for audit, never deleted.
//
// WaitUntil is non-nil only while Status is waiting and the wait is time-based;
// a condition-based wait keeps WaitUntil nil and is re-evaluated by the resumer.
// CurrentStep always points to a valid index of the owning definition's step
// list, or one past the end once the execution completed.
type WorkflowExecution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	TenantID       string          `json:"tenant_id"`
	Status         ExecutionStatus `json:"status"`
	CurrentStep    int             `json:"current_step"`
	TriggerPayload map[string]any  `json:"trigger_payload,omitempty"`
	StepOutputs    map[string]any  `json:"step_outputs,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	WaitUntil      *time.Time      `json:"wait_until,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
}

// EvaluationContext merges the captured trigger payload with accumulated step
// outputs; step outputs win on key collision. Condition steps and wait
// expressions evaluate against this view.
func (e *WorkflowExecution) EvaluationContext() map[string]any {
	merged := make(map[string]any, len(e.TriggerPayload)+len(e.StepOutputs))

	for k, v := range e.TriggerPayload {
		merged[k] = v
	}

	for k, v := range e.StepOutputs {
		merged[k] = v
	}

	return merged
}

// StepOutcome classifies what a single step execution produced.
type StepOutcome string

const (
	StepOutcomeSuccess StepOutcome = "success"
	StepOutcomeFailure StepOutcome = "failure"
	StepOutcomeSkipped StepOutcome = "skipped"
)

// StepExecutionRecord is the append-only audit trail of step executions. Exactly
// one record is written per executor step invocation, regardless of outcome.
type StepExecutionRecord struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	StepIndex   int            `json:"step_index"`
	Outcome     StepOutcome    `json:"outcome"`
	Output      map[string]any `json:"output,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
