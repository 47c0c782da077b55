// Package web provides HTTP request and response types for the relay API.
package web

import (
	"time"

	"github.com/quivela/relay/pkg/models"
)

// Envelope wraps webhook endpoint responses.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// CreateWorkflowRequest represents the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name    string         `json:"name"    validate:"required,min=3"`
	Trigger TriggerRequest `json:"trigger" validate:"required"`
	Steps   []StepRequest  `json:"steps"   validate:"required,min=1,dive"`
	Enabled *bool          `json:"enabled,omitempty"`
}

// TriggerRequest carries the trigger block of a workflow definition.
type TriggerRequest struct {
	Type          string         `json:"type" validate:"required,oneof=schedule event manual"`
	Configuration map[string]any `json:"configuration,omitempty"`
}

// StepRequest carries one step of a workflow definition. Field usage depends
// on the step type; structural validation happens in the workflow repository.
type StepRequest struct {
	Name            string            `json:"name" validate:"required,min=1"`
	Type            string            `json:"type" validate:"required,oneof=action condition wait end"`
	ActionType      string            `json:"action_type,omitempty"`
	ActionConfig    map[string]any    `json:"action_config,omitempty"`
	BestEffort      bool              `json:"best_effort,omitempty"`
	Expression      *models.Condition `json:"expression,omitempty"`
	TrueNext        *int              `json:"true_next,omitempty"`
	FalseNext       *int              `json:"false_next,omitempty"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`
	WaitExpression  *models.Condition `json:"wait_expression,omitempty"`
}

// ToModel converts the request step into the domain step.
func (s StepRequest) ToModel() models.Step {
	return models.Step{
		Name:            s.Name,
		Type:            models.StepType(s.Type),
		ActionType:      s.ActionType,
		ActionConfig:    s.ActionConfig,
		BestEffort:      s.BestEffort,
		Expression:      s.Expression,
		TrueNext:        s.TrueNext,
		FalseNext:       s.FalseNext,
		DurationSeconds: s.DurationSeconds,
		WaitExpression:  s.WaitExpression,
	}
}

// TriggerWorkflowRequest is the body of the manual trigger endpoint.
type TriggerWorkflowRequest struct {
	Payload map[string]any `json:"payload,omitempty"`
}

// CreateSubscriptionRequest represents the request body for creating or
// replacing a webhook subscription.
type CreateSubscriptionRequest struct {
	URL            string            `json:"url"             validate:"required,url"`
	EventTypes     []string          `json:"event_types"     validate:"required,min=1,dive,required"`
	Secret         string            `json:"secret"          validate:"required,min=16"`
	Active         *bool             `json:"active,omitempty"`
	MaxRetries     int               `json:"max_retries"     validate:"omitempty,min=1,max=10"`
	TimeoutSeconds int               `json:"timeout_seconds" validate:"omitempty,min=1,max=120"`
	AllowedIPs     []string          `json:"allowed_ips,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// PublishEventRequest represents the body of the event publication endpoint.
type PublishEventRequest struct {
	EventType string         `json:"event_type" validate:"required"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ReplayRequest names the exhausted delivery attempt to replay.
type ReplayRequest struct {
	FailureID string `json:"failure_id" validate:"required"`
}

// RunSummaryResponse reports what one cron invocation did.
type RunSummaryResponse struct {
	Success   bool      `json:"success"`
	Scheduled int       `json:"scheduled"`
	Resumed   int       `json:"resumed"`
	Retried   int       `json:"retried"`
	Timestamp time.Time `json:"timestamp"`
}
