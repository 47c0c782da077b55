package models

// ExecutionContext is the view of a running execution handed to action
// handlers. Handlers read from it and return their output; they never mutate
// the execution directly.
type ExecutionContext struct {
	ExecutionID    string         `json:"execution_id"`
	WorkflowID     string         `json:"workflow_id"`
	TenantID       string         `json:"tenant_id"`
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`
	StepOutputs    map[string]any `json:"step_outputs,omitempty"`
}

// Data merges the trigger payload with accumulated step outputs, outputs
// winning on collision.
func (c ExecutionContext) Data() map[string]any {
	merged := make(map[string]any, len(c.TriggerPayload)+len(c.StepOutputs))

	for k, v := range c.TriggerPayload {
		merged[k] = v
	}

	for k, v := range c.StepOutputs {
		merged[k] = v
	}

	return merged
}
