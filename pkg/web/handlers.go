// Package web provides the HTTP handlers for workflow management, webhook
// subscriptions and the cron ingress.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
	"github.com/quivela/relay/pkg/registry"
	"github.com/quivela/relay/pkg/webhook"
	"github.com/quivela/relay/pkg/workflow"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type APIHandlers struct {
	workflows *workflow.Repository
	trigger   *workflow.TriggerService
	scheduler *workflow.Scheduler
	resumer   *workflow.Resumer
	webhooks  *webhook.Manager
	delivery  *webhook.DeliveryService

	persistence persistence.Persistence
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	workflows *workflow.Repository,
	trigger *workflow.TriggerService,
	scheduler *workflow.Scheduler,
	resumer *workflow.Resumer,
	webhooks *webhook.Manager,
	delivery *webhook.DeliveryService,
	p persistence.Persistence,
	reg *registry.Registry,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflows:   workflows,
		trigger:     trigger,
		scheduler:   scheduler,
		resumer:     resumer,
		webhooks:    webhooks,
		delivery:    delivery,
		persistence: p,
		registry:    reg,
		validator:   validate,
	}
}

// RunCron is the single scheduling ingress. One invocation runs the schedule
// pass, the resume pass and the delivery-retry pass, in that order.
func (h *APIHandlers) RunCron(c fiber.Ctx) error {
	scheduled, err := h.scheduler.ScheduleWorkflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	resumed, err := h.resumer.ResumeWaitingExecutions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	retried, err := h.delivery.ProcessDueRetries(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(RunSummaryResponse{
		Success:   true,
		Scheduled: scheduled.Scheduled,
		Resumed:   resumed.Resumed,
		Retried:   retried,
		Timestamp: time.Now().UTC(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()
	repositoryCheck, repOk := h.workflows.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflows.FetchAll(c.Context(), tenantID(c))
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(workflows)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	definition := &models.WorkflowDefinition{
		TenantID: tenantID(c),
		Name:     req.Name,
		Trigger: models.Trigger{
			Type:          models.TriggerType(req.Trigger.Type),
			Configuration: req.Trigger.Configuration,
		},
		Steps:   make([]models.Step, 0, len(req.Steps)),
		Enabled: enabled,
	}

	for _, step := range req.Steps {
		definition.Steps = append(definition.Steps, step.ToModel())
	}

	created, err := h.workflows.Create(c.Context(), definition)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	definition, err := h.workflowForTenant(c)
	if err != nil {
		return workflowNotFoundOrInternal(c, err)
	}

	return c.JSON(definition)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	existing, err := h.workflowForTenant(c)
	if err != nil {
		return workflowNotFoundOrInternal(c, err)
	}

	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	enabled := existing.Enabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	definition := &models.WorkflowDefinition{
		Name: req.Name,
		Trigger: models.Trigger{
			Type:          models.TriggerType(req.Trigger.Type),
			Configuration: req.Trigger.Configuration,
		},
		Steps:   make([]models.Step, 0, len(req.Steps)),
		Enabled: enabled,
	}

	for _, step := range req.Steps {
		definition.Steps = append(definition.Steps, step.ToModel())
	}

	updated, err := h.workflows.Update(c.Context(), existing.ID, definition)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	existing, err := h.workflowForTenant(c)
	if err != nil {
		return workflowNotFoundOrInternal(c, err)
	}

	if err := h.workflows.Delete(c.Context(), existing.ID); err != nil {
		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// TriggerWorkflow starts one execution synchronously and returns it in
// whatever state it reached, running, waiting or terminal.
func (h *APIHandlers) TriggerWorkflow(c fiber.Ctx) error {
	existing, err := h.workflowForTenant(c)
	if err != nil {
		return workflowNotFoundOrInternal(c, err)
	}

	var req TriggerWorkflowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	execution, err := h.trigger.TriggerWorkflow(c.Context(), existing.ID, req.Payload)
	if err != nil && execution == nil {
		return badRequest(c, err.Error())
	}

	return c.Status(fiber.StatusCreated).JSON(execution)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	existing, err := h.workflowForTenant(c)
	if err != nil {
		return workflowNotFoundOrInternal(c, err)
	}

	limit, offset := pagination(c)

	executions, err := h.persistence.ExecutionsByWorkflow(c.Context(), existing.ID, limit, offset)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(executions)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	execution, err := h.executionForTenant(c)
	if err != nil {
		return executionNotFoundOrInternal(c, err)
	}

	return c.JSON(execution)
}

func (h *APIHandlers) GetExecutionSteps(c fiber.Ctx) error {
	execution, err := h.executionForTenant(c)
	if err != nil {
		return executionNotFoundOrInternal(c, err)
	}

	records, err := h.persistence.StepRecords(c.Context(), execution.ID)
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(records)
}

// workflowForTenant loads the :id workflow and enforces tenant ownership. A
// foreign tenant's workflow looks like a missing one.
func (h *APIHandlers) workflowForTenant(c fiber.Ctx) (*models.WorkflowDefinition, error) {
	definition, err := h.workflows.FetchByID(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}

	if definition.TenantID != tenantID(c) {
		return nil, persistence.ErrWorkflowNotFound
	}

	return definition, nil
}

func (h *APIHandlers) executionForTenant(c fiber.Ctx) (*models.WorkflowExecution, error) {
	execution, err := h.persistence.ExecutionByID(c.Context(), c.Params("id"))
	if err != nil {
		return nil, err
	}

	if execution.TenantID != tenantID(c) {
		return nil, persistence.ErrExecutionNotFound
	}

	return execution, nil
}

func workflowNotFoundOrInternal(c fiber.Ctx, err error) error {
	if persistence.IsNotFound(err) {
		return notFound(c, "Workflow not found")
	}

	return internalError(c, err)
}

func executionNotFoundOrInternal(c fiber.Ctx, err error) error {
	if persistence.IsNotFound(err) {
		return notFound(c, "Execution not found")
	}

	return internalError(c, err)
}

func pagination(c fiber.Ctx) (int, int) {
	limit := defaultPageLimit
	offset := 0

	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxPageLimit)
		}
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
