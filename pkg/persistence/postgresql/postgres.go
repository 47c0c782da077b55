// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	webhookRepo   *WebhookRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
		webhookRepo:   NewWebhookRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Workflow store.

func (p *Persistence) Workflows(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	return p.workflowRepo.GetAll(ctx, tenantID)
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return p.workflowRepo.GetByID(ctx, id)
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.WorkflowDefinition) error {
	return p.workflowRepo.Save(ctx, workflow)
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	return p.workflowRepo.Delete(ctx, id)
}

func (p *Persistence) EnabledWorkflowsByTriggerType(ctx context.Context, triggerType models.TriggerType) ([]*models.WorkflowDefinition, error) {
	return p.workflowRepo.GetEnabledByTriggerType(ctx, triggerType)
}

// Execution store.

func (p *Persistence) CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executionRepo.Create(ctx, execution)
}

func (p *Persistence) UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	return p.executionRepo.Update(ctx, execution)
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return p.executionRepo.GetByID(ctx, id)
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string, limit, offset int) ([]*models.WorkflowExecution, error) {
	return p.executionRepo.GetByWorkflow(ctx, workflowID, limit, offset)
}

func (p *Persistence) LatestExecutionForWorkflow(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	return p.executionRepo.GetLatestForWorkflow(ctx, workflowID)
}

func (p *Persistence) WaitingExecutions(ctx context.Context) ([]*models.WorkflowExecution, error) {
	return p.executionRepo.GetWaiting(ctx)
}

func (p *Persistence) ClaimExecution(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	return p.executionRepo.Claim(ctx, id, from, to)
}

func (p *Persistence) AppendStepRecord(ctx context.Context, record *models.StepExecutionRecord) error {
	return p.executionRepo.AppendStepRecord(ctx, record)
}

func (p *Persistence) StepRecords(ctx context.Context, executionID string) ([]*models.StepExecutionRecord, error) {
	return p.executionRepo.GetStepRecords(ctx, executionID)
}

// Webhook store.

func (p *Persistence) Subscriptions(ctx context.Context, tenantID string) ([]*models.WebhookSubscription, error) {
	return p.webhookRepo.GetSubscriptions(ctx, tenantID)
}

func (p *Persistence) SubscriptionByID(ctx context.Context, id string) (*models.WebhookSubscription, error) {
	return p.webhookRepo.GetSubscriptionByID(ctx, id)
}

func (p *Persistence) SaveSubscription(ctx context.Context, subscription *models.WebhookSubscription) error {
	return p.webhookRepo.SaveSubscription(ctx, subscription)
}

func (p *Persistence) DeleteSubscription(ctx context.Context, id string) error {
	return p.webhookRepo.DeleteSubscription(ctx, id)
}

func (p *Persistence) ActiveSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]*models.WebhookSubscription, error) {
	return p.webhookRepo.GetActiveSubscriptionsForEvent(ctx, tenantID, eventType)
}

func (p *Persistence) SaveWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	return p.webhookRepo.SaveEvent(ctx, event)
}

func (p *Persistence) WebhookEventByID(ctx context.Context, id string) (*models.WebhookEvent, error) {
	return p.webhookRepo.GetEventByID(ctx, id)
}

func (p *Persistence) WebhookEvents(ctx context.Context, tenantID, eventType string, limit, offset int) ([]*models.WebhookEvent, error) {
	return p.webhookRepo.GetEvents(ctx, tenantID, eventType, limit, offset)
}

func (p *Persistence) AppendDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	return p.webhookRepo.AppendAttempt(ctx, attempt)
}

func (p *Persistence) DeliveryAttemptByID(ctx context.Context, id string) (*models.DeliveryAttempt, error) {
	return p.webhookRepo.GetAttemptByID(ctx, id)
}

func (p *Persistence) DeliveryAttempts(ctx context.Context, subscriptionID string, limit, offset int) ([]*models.DeliveryAttempt, error) {
	return p.webhookRepo.GetAttempts(ctx, subscriptionID, limit, offset)
}

func (p *Persistence) AttemptCount(ctx context.Context, subscriptionID, eventID string) (int, error) {
	return p.webhookRepo.CountAttempts(ctx, subscriptionID, eventID)
}

func (p *Persistence) FailedDeliveries(ctx context.Context, subscriptionID string) ([]*models.DeliveryAttempt, error) {
	return p.webhookRepo.GetFailedDeliveries(ctx, subscriptionID)
}

func (p *Persistence) DueRetries(ctx context.Context, now time.Time) ([]*models.DeliveryAttempt, error) {
	return p.webhookRepo.GetDueRetries(ctx, now)
}

func (p *Persistence) DeliveryStats(ctx context.Context, subscriptionID string, from, to time.Time) (*models.DeliveryStats, error) {
	return p.webhookRepo.GetStats(ctx, subscriptionID, from, to)
}
