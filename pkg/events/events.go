// Package events defines the event types flowing over the internal bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Bus topic.
const Topic = "relay.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Business events entering the delivery pipeline.
	WebhookEventQueuedEvent EventType = "webhook.event.queued"

	// Workflow lifecycle events.
	WorkflowTriggeredEvent EventType = "workflow.triggered"
	WorkflowFinishedEvent  EventType = "workflow.finished"
	WorkflowFailedEvent    EventType = "workflow.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		TenantID:  tenantID,
	}
}

// WebhookEventQueued announces a persisted webhook event awaiting fan-out.
type WebhookEventQueued struct {
	BaseEvent

	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
}

func (w WebhookEventQueued) GetType() EventType {
	return WebhookEventQueuedEvent
}

type WorkflowTriggered struct {
	BaseEvent

	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (w WorkflowTriggered) GetType() EventType {
	return WorkflowTriggeredEvent
}

type WorkflowFinished struct {
	BaseEvent

	WorkflowID  string        `json:"workflow_id"`
	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (w WorkflowFinished) GetType() EventType {
	return WorkflowFinishedEvent
}

type WorkflowFailed struct {
	BaseEvent

	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
}

func (w WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}
