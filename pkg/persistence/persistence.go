// Package persistence provides the data storage abstraction for workflow
// definitions, executions, subscriptions, events and delivery attempts.
package persistence

import (
	"context"
	"time"

	"github.com/quivela/relay/pkg/models"
)

// Persistence is the single source of truth shared by the scheduler, the
// resumer, the executor and the webhook delivery service. All cross-process
// coordination happens through conditional writes against it, never through
// in-process locks.
type Persistence interface {
	WorkflowStore
	ExecutionStore
	WebhookStore

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowStore interface {
	Workflows(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error)
	WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	SaveWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error
	DeleteWorkflow(ctx context.Context, id string) error

	// EnabledWorkflowsByTriggerType lists enabled definitions with the given
	// trigger type across all tenants; the scheduler and the event intake
	// both drive off this.
	EnabledWorkflowsByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.WorkflowDefinition, error)
}

type ExecutionStore interface {
	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*models.WorkflowExecution, error)

	// LatestExecutionForWorkflow returns the most recently started execution
	// for a workflow, nil when none exists. The scheduler derives "last run"
	// from it.
	LatestExecutionForWorkflow(ctx context.Context, workflowID string) (*models.WorkflowExecution, error)

	// WaitingExecutions lists executions with status waiting, both time-based
	// (wait_until set) and condition-based (wait_until null).
	WaitingExecutions(ctx context.Context) ([]*models.WorkflowExecution, error)

	// ClaimExecution performs the compare-and-swap status transition. It
	// returns true when this caller won the claim and false when another
	// process already moved the execution out of the expected status.
	ClaimExecution(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error)

	AppendStepRecord(ctx context.Context, record *models.StepExecutionRecord) error
	StepRecords(ctx context.Context, executionID string) ([]*models.StepExecutionRecord, error)
}

type WebhookStore interface {
	Subscriptions(ctx context.Context, tenantID string) ([]*models.WebhookSubscription, error)
	SubscriptionByID(ctx context.Context, id string) (*models.WebhookSubscription, error)
	SaveSubscription(ctx context.Context, subscription *models.WebhookSubscription) error
	DeleteSubscription(ctx context.Context, id string) error
	ActiveSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]*models.WebhookSubscription, error)

	SaveWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
	WebhookEventByID(ctx context.Context, id string) (*models.WebhookEvent, error)
	WebhookEvents(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*models.WebhookEvent, error)

	AppendDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	DeliveryAttemptByID(ctx context.Context, id string) (*models.DeliveryAttempt, error)
	DeliveryAttempts(ctx context.Context, subscriptionID string, limit, offset int) ([]*models.DeliveryAttempt, error)

	// AttemptCount returns how many attempts exist for a (subscription, event)
	// pair; the delivery service checks it against the retry budget.
	AttemptCount(ctx context.Context, subscriptionID, eventID string) (int, error)

	// FailedDeliveries lists exhausted failed attempts for a subscription,
	// newest first. These are the replay candidates.
	FailedDeliveries(ctx context.Context, subscriptionID string) ([]*models.DeliveryAttempt, error)

	// DueRetries lists failed attempts whose next_retry_at has elapsed and
	// which are still the latest attempt of their pair.
	DueRetries(ctx context.Context, now time.Time) ([]*models.DeliveryAttempt, error)

	DeliveryStats(ctx context.Context, subscriptionID string, from, to time.Time) (*models.DeliveryStats, error)
}
