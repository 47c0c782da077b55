package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

// Repository wraps the persistence layer with definition-level bookkeeping:
// ID assignment, timestamps and step validation.
type Repository struct {
	persistence persistence.Persistence
}

func NewRepository(persistence persistence.Persistence) *Repository {
	return &Repository{persistence: persistence}
}

func (r *Repository) HealthCheck(ctx context.Context) (string, bool) {
	if r.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := r.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (r *Repository) FetchAll(ctx context.Context, tenantID string) ([]*models.WorkflowDefinition, error) {
	return r.persistence.Workflows(ctx, tenantID)
}

func (r *Repository) FetchByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	return r.persistence.WorkflowByID(ctx, id)
}

func (r *Repository) Create(ctx context.Context, workflow *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	err := validateSteps(workflow.Steps)
	if err != nil {
		return nil, err
	}

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	err = r.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *Repository) Update(ctx context.Context, id string, workflow *models.WorkflowDefinition) (*models.WorkflowDefinition, error) {
	err := validateSteps(workflow.Steps)
	if err != nil {
		return nil, err
	}

	existing, err := r.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.ID = id
	workflow.TenantID = existing.TenantID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	err = r.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return err
	}

	return r.persistence.DeleteWorkflow(ctx, id)
}

func validateSteps(steps []models.Step) error {
	for i := range steps {
		err := steps[i].Validate()
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}

		if steps[i].Type == models.StepTypeCondition {
			if err := validateBranchTarget(steps[i].TrueNext, len(steps), i); err != nil {
				return err
			}

			if err := validateBranchTarget(steps[i].FalseNext, len(steps), i); err != nil {
				return err
			}
		}
	}

	return validateConditionFlow(steps)
}

// validateConditionFlow rejects branch targets that chain condition steps
// into a cycle. A cycle through conditions alone never reaches an action,
// wait or end step, so the executor would loop without bound.
func validateConditionFlow(steps []models.Step) error {
	const (
		unvisited = iota
		visiting
		settled
	)

	state := make([]int, len(steps))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case visiting:
			return fmt.Errorf("step %d: condition branches form a cycle", i)
		case settled:
			return nil
		}

		state[i] = visiting

		for _, target := range conditionSuccessors(steps, i) {
			if err := visit(target); err != nil {
				return err
			}
		}

		state[i] = settled

		return nil
	}

	for i := range steps {
		if steps[i].Type == models.StepTypeCondition && state[i] == unvisited {
			if err := visit(i); err != nil {
				return err
			}
		}
	}

	return nil
}

// conditionSuccessors lists the condition steps a condition at index i can
// hand control to directly. A nil branch target falls through to i+1.
func conditionSuccessors(steps []models.Step, i int) []int {
	resolve := func(target *int) int {
		if target != nil {
			return *target
		}

		return i + 1
	}

	successors := make([]int, 0, 2)

	for _, target := range []int{resolve(steps[i].TrueNext), resolve(steps[i].FalseNext)} {
		if target >= 0 && target < len(steps) && steps[target].Type == models.StepTypeCondition {
			successors = append(successors, target)
		}
	}

	return successors
}

func validateBranchTarget(target *int, stepCount, stepIndex int) error {
	if target == nil {
		return nil
	}

	// A branch may point one past the end, which completes the execution.
	if *target < 0 || *target > stepCount {
		return fmt.Errorf("step %d: branch target %d out of range", stepIndex, *target)
	}

	return nil
}
