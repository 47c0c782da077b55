// Package models defines the core domain models for the automation and webhook delivery core.
package models

import "time"

// TriggerType identifies how a workflow execution gets started.
type TriggerType string

const (
	TriggerTypeSchedule TriggerType = "schedule" // cron-style recurring trigger
	TriggerTypeEvent    TriggerType = "event"    // fired by an internal business event
	TriggerTypeManual   TriggerType = "manual"   // fired through the trigger endpoint
)

// Trigger describes what starts a workflow and carries its static configuration,
// e.g. {"cron": "*/5 * * * *"} for schedule triggers or
// {"event_type": "order.created"} for event triggers.
type Trigger struct {
	Type          TriggerType    `json:"type"          validate:"required,oneof=schedule event manual"`
	Configuration map[string]any `json:"configuration"`
}

// WorkflowDefinition is the persisted definition of an automation workflow.
// Edits only affect executions created afterwards; running executions keep
// stepping through the step list they started with.
type WorkflowDefinition struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id" validate:"required"`
	Name      string    `json:"name"      validate:"required,min=3"`
	Trigger   Trigger   `json:"trigger"   validate:"required"`
	Steps     []Step    `json:"steps"     validate:"required,min=1,dive"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CronExpression returns the cron expression of a schedule trigger, empty
// string for other trigger types.
func (w *WorkflowDefinition) CronExpression() string {
	if w.Trigger.Type != TriggerTypeSchedule {
		return ""
	}

	expr, _ := w.Trigger.Configuration["cron"].(string)

	return expr
}

// EventType returns the subscribed business event type of an event trigger.
func (w *WorkflowDefinition) EventType() string {
	if w.Trigger.Type != TriggerTypeEvent {
		return ""
	}

	eventType, _ := w.Trigger.Configuration["event_type"].(string)

	return eventType
}
