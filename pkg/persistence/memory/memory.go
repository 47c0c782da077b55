// Package memory provides an in-memory persistence implementation used by
// tests and local development (memory:// database URL).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

// Persistence keeps everything in maps guarded by a single RWMutex. The
// conditional status transition in ClaimExecution runs under the write lock,
// which gives it the same atomicity the SQL implementation gets from a
// conditional UPDATE.
type Persistence struct {
	mu sync.RWMutex

	workflows     map[string]*models.WorkflowDefinition
	executions    map[string]*models.WorkflowExecution
	stepRecords   map[string][]*models.StepExecutionRecord
	subscriptions map[string]*models.WebhookSubscription
	events        map[string]*models.WebhookEvent
	attempts      map[string]*models.DeliveryAttempt
	attemptOrder  []string
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:     make(map[string]*models.WorkflowDefinition),
		executions:    make(map[string]*models.WorkflowExecution),
		stepRecords:   make(map[string][]*models.StepExecutionRecord),
		subscriptions: make(map[string]*models.WebhookSubscription),
		events:        make(map[string]*models.WebhookEvent),
		attempts:      make(map[string]*models.DeliveryAttempt),
	}
}

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// Workflow store.

func (p *Persistence) Workflows(_ context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.WorkflowDefinition, 0)

	for _, workflow := range p.workflows {
		if tenantID == "" || workflow.TenantID == tenantID {
			result = append(result, cloneWorkflow(workflow))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.ErrWorkflowNotFound
	}

	return cloneWorkflow(workflow), nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.WorkflowDefinition) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = cloneWorkflow(workflow)

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return persistence.ErrWorkflowNotFound
	}

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) EnabledWorkflowsByTriggerType(_ context.Context, triggerType models.TriggerType) ([]*models.WorkflowDefinition, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.WorkflowDefinition, 0)

	for _, workflow := range p.workflows {
		if workflow.Enabled && workflow.Trigger.Type == triggerType {
			result = append(result, cloneWorkflow(workflow))
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

// Execution store.

func (p *Persistence) CreateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.executions[execution.ID]; ok {
		return persistence.ErrExecutionExists
	}

	p.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func (p *Persistence) UpdateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.executions[execution.ID]; !ok {
		return persistence.ErrExecutionNotFound
	}

	p.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	execution, ok := p.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return cloneExecution(execution), nil
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string, limit, offset int) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.WorkflowExecution, 0)

	for _, execution := range p.executions {
		if execution.WorkflowID == workflowID {
			result = append(result, cloneExecution(execution))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	return paginate(result, limit, offset), nil
}

func (p *Persistence) LatestExecutionForWorkflow(_ context.Context, workflowID string) (*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var latest *models.WorkflowExecution

	for _, execution := range p.executions {
		if execution.WorkflowID != workflowID {
			continue
		}

		if latest == nil || execution.StartedAt.After(latest.StartedAt) {
			latest = execution
		}
	}

	if latest == nil {
		return nil, nil
	}

	return cloneExecution(latest), nil
}

func (p *Persistence) WaitingExecutions(_ context.Context) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.WorkflowExecution, 0)

	for _, execution := range p.executions {
		if execution.Status == models.ExecutionStatusWaiting {
			result = append(result, cloneExecution(execution))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.Before(result[j].StartedAt)
	})

	return result, nil
}

func (p *Persistence) ClaimExecution(_ context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	execution, ok := p.executions[id]
	if !ok {
		return false, persistence.ErrExecutionNotFound
	}

	if execution.Status != from {
		return false, nil
	}

	execution.Status = to
	if to != models.ExecutionStatusWaiting {
		execution.WaitUntil = nil
	}

	return true, nil
}

func (p *Persistence) AppendStepRecord(_ context.Context, record *models.StepExecutionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *record
	p.stepRecords[record.ExecutionID] = append(p.stepRecords[record.ExecutionID], &clone)

	return nil
}

func (p *Persistence) StepRecords(_ context.Context, executionID string) ([]*models.StepExecutionRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	records := p.stepRecords[executionID]
	result := make([]*models.StepExecutionRecord, 0, len(records))

	for _, record := range records {
		clone := *record
		result = append(result, &clone)
	}

	return result, nil
}

// Webhook store.

func (p *Persistence) Subscriptions(_ context.Context, tenantID string) ([]*models.WebhookSubscription, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.WebhookSubscription, 0)

	for _, subscription := range p.subscriptions {
		if tenantID == "" || subscription.TenantID == tenantID {
			clone := *subscription
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (p *Persistence) SubscriptionByID(_ context.Context, id string) (*models.WebhookSubscription, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	subscription, ok := p.subscriptions[id]
	if !ok {
		return nil, persistence.ErrSubscriptionNotFound
	}

	clone := *subscription

	return &clone, nil
}

func (p *Persistence) SaveSubscription(_ context.Context, subscription *models.WebhookSubscription) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *subscription
	p.subscriptions[subscription.ID] = &clone

	return nil
}

func (p *Persistence) DeleteSubscription(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subscriptions[id]; !ok {
		return persistence.ErrSubscriptionNotFound
	}

	delete(p.subscriptions, id)

	return nil
}

func (p *Persistence) ActiveSubscriptionsForEvent(_ context.Context, tenantID, eventType string) ([]*models.WebhookSubscription, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.WebhookSubscription, 0)

	for _, subscription := range p.subscriptions {
		if subscription.TenantID == tenantID && subscription.Active && subscription.SubscribedTo(eventType) {
			clone := *subscription
			result = append(result, &clone)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	return result, nil
}

func (p *Persistence) SaveWebhookEvent(_ context.Context, event *models.WebhookEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *event
	p.events[event.ID] = &clone

	return nil
}

func (p *Persistence) WebhookEventByID(_ context.Context, id string) (*models.WebhookEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	event, ok := p.events[id]
	if !ok {
		return nil, persistence.ErrEventNotFound
	}

	clone := *event

	return &clone, nil
}

func (p *Persistence) WebhookEvents(_ context.Context, tenantID, eventType string, limit, offset int) ([]*models.WebhookEvent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.WebhookEvent, 0)

	for _, event := range p.events {
		if tenantID != "" && event.TenantID != tenantID {
			continue
		}

		if eventType != "" && event.EventType != eventType {
			continue
		}

		clone := *event
		result = append(result, &clone)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, limit, offset), nil
}

func (p *Persistence) AppendDeliveryAttempt(_ context.Context, attempt *models.DeliveryAttempt) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *attempt
	p.attempts[attempt.ID] = &clone
	p.attemptOrder = append(p.attemptOrder, attempt.ID)

	return nil
}

func (p *Persistence) DeliveryAttemptByID(_ context.Context, id string) (*models.DeliveryAttempt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	attempt, ok := p.attempts[id]
	if !ok {
		return nil, persistence.ErrAttemptNotFound
	}

	clone := *attempt

	return &clone, nil
}

func (p *Persistence) DeliveryAttempts(_ context.Context, subscriptionID string, limit, offset int) ([]*models.DeliveryAttempt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.DeliveryAttempt, 0)

	// Walk insertion order backwards so newest attempts come first.
	for i := len(p.attemptOrder) - 1; i >= 0; i-- {
		attempt := p.attempts[p.attemptOrder[i]]
		if attempt.SubscriptionID == subscriptionID {
			clone := *attempt
			result = append(result, &clone)
		}
	}

	return paginate(result, limit, offset), nil
}

func (p *Persistence) AttemptCount(_ context.Context, subscriptionID, eventID string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0

	for _, attempt := range p.attempts {
		if attempt.SubscriptionID == subscriptionID && attempt.EventID == eventID {
			count++
		}
	}

	return count, nil
}

func (p *Persistence) FailedDeliveries(_ context.Context, subscriptionID string) ([]*models.DeliveryAttempt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	subscription, ok := p.subscriptions[subscriptionID]
	if !ok {
		return nil, persistence.ErrSubscriptionNotFound
	}

	result := make([]*models.DeliveryAttempt, 0)

	for i := len(p.attemptOrder) - 1; i >= 0; i-- {
		attempt := p.attempts[p.attemptOrder[i]]
		if attempt.SubscriptionID != subscriptionID || attempt.Success {
			continue
		}

		if p.pairDelivered(attempt.SubscriptionID, attempt.EventID) {
			continue
		}

		if attempt.AttemptNumber >= subscription.MaxRetries && p.isLatestAttempt(attempt) {
			clone := *attempt
			result = append(result, &clone)
		}
	}

	return result, nil
}

func (p *Persistence) DueRetries(_ context.Context, now time.Time) ([]*models.DeliveryAttempt, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.DeliveryAttempt, 0)

	for _, id := range p.attemptOrder {
		attempt := p.attempts[id]
		if attempt.Success || attempt.NextRetryAt == nil || attempt.NextRetryAt.After(now) {
			continue
		}

		if !p.isLatestAttempt(attempt) || p.pairDelivered(attempt.SubscriptionID, attempt.EventID) {
			continue
		}

		clone := *attempt
		result = append(result, &clone)
	}

	return result, nil
}

func (p *Persistence) DeliveryStats(_ context.Context, subscriptionID string, from, to time.Time) (*models.DeliveryStats, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := &models.DeliveryStats{
		WindowFromUnix: from.Unix(),
		WindowToUnix:   to.Unix(),
	}

	var totalLatency int64

	for _, attempt := range p.attempts {
		if attempt.SubscriptionID != subscriptionID {
			continue
		}

		if attempt.CreatedAt.Before(from) || attempt.CreatedAt.After(to) {
			continue
		}

		stats.TotalAttempts++
		totalLatency += attempt.DurationMS

		if attempt.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
		}
	}

	if stats.TotalAttempts > 0 {
		stats.AvgLatencyMS = float64(totalLatency) / float64(stats.TotalAttempts)
	}

	return stats, nil
}

// isLatestAttempt reports whether no later attempt exists for the same pair.
// Callers hold at least the read lock.
func (p *Persistence) isLatestAttempt(attempt *models.DeliveryAttempt) bool {
	for _, other := range p.attempts {
		if other.SubscriptionID == attempt.SubscriptionID &&
			other.EventID == attempt.EventID &&
			other.AttemptNumber > attempt.AttemptNumber {
			return false
		}
	}

	return true
}

func (p *Persistence) pairDelivered(subscriptionID, eventID string) bool {
	for _, other := range p.attempts {
		if other.SubscriptionID == subscriptionID && other.EventID == eventID && other.Success {
			return true
		}
	}

	return false
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}

	items = items[offset:]

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}

func cloneWorkflow(workflow *models.WorkflowDefinition) *models.WorkflowDefinition {
	clone := *workflow
	clone.Steps = make([]models.Step, len(workflow.Steps))
	copy(clone.Steps, workflow.Steps)

	return &clone
}

func cloneExecution(execution *models.WorkflowExecution) *models.WorkflowExecution {
	clone := *execution

	if execution.TriggerPayload != nil {
		clone.TriggerPayload = make(map[string]any, len(execution.TriggerPayload))
		for k, v := range execution.TriggerPayload {
			clone.TriggerPayload[k] = v
		}
	}

	if execution.StepOutputs != nil {
		clone.StepOutputs = make(map[string]any, len(execution.StepOutputs))
		for k, v := range execution.StepOutputs {
			clone.StepOutputs[k] = v
		}
	}

	return &clone
}
