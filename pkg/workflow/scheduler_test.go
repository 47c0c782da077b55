package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
	"github.com/quivela/relay/pkg/persistence/memory"
)

func newTestScheduler(store *memory.Persistence, now time.Time) *Scheduler {
	reg := newTestRegistry(
		&stubFactory{id: "noop", action: &stubAction{output: map[string]any{"ok": true}}},
	)
	scheduler := NewScheduler(store, NewExecutor(store, reg, testLogger()), testLogger())
	scheduler.now = func() time.Time { return now }

	return scheduler
}

func TestSchedulerCreatesDueExecution(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(store, now)

	definition := scheduleDefinition("acme", "*/5 * * * *", []models.Step{
		{Name: "work", Type: models.StepTypeAction, ActionType: "noop"},
		{Name: "done", Type: models.StepTypeEnd},
	})
	require.NoError(t, store.SaveWorkflow(t.Context(), definition))

	summary, err := scheduler.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scheduled)
	assert.Equal(t, 1, summary.Succeeded)

	executions, err := store.ExecutionsByWorkflow(t.Context(), definition.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, models.ExecutionStatusCompleted, executions[0].Status)
	assert.Equal(t, now, executions[0].StartedAt)
	assert.Equal(t, "schedule", executions[0].TriggerPayload["trigger"])
}

func TestSchedulerSecondPassSkips(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(store, now)

	definition := scheduleDefinition("acme", "*/5 * * * *", []models.Step{
		{Name: "done", Type: models.StepTypeEnd},
	})
	require.NoError(t, store.SaveWorkflow(t.Context(), definition))

	first, err := scheduler.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Scheduled)

	// Same wall-clock instant: the occurrence already ran, nothing is due.
	second, err := scheduler.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Scheduled)
	assert.Equal(t, 1, second.Skipped)

	executions, err := store.ExecutionsByWorkflow(t.Context(), definition.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestSchedulerConcurrentPassLosesInsert(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scheduler := newTestScheduler(store, now)

	definition := scheduleDefinition("acme", "*/5 * * * *", []models.Step{
		{Name: "done", Type: models.StepTypeEnd},
	})
	require.NoError(t, store.SaveWorkflow(t.Context(), definition))

	// The last recorded run covered 11:55, so the 12:00 occurrence is due. A
	// racing pass computed that occurrence and inserted first; the execution
	// ID is deterministic per (workflow, occurrence), so this pass collides
	// instead of double-scheduling.
	racedID := uuid.NewSHA1(schedulerNamespace, []byte(definition.ID+now.Format(time.RFC3339))).String()
	require.NoError(t, store.CreateExecution(t.Context(), &models.WorkflowExecution{
		ID:         racedID,
		WorkflowID: definition.ID,
		TenantID:   definition.TenantID,
		Status:     models.ExecutionStatusRunning,
		StartedAt:  time.Date(2026, 3, 1, 11, 55, 0, 0, time.UTC),
	}))

	summary, err := scheduler.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scheduled)
	assert.Equal(t, 1, summary.Skipped)

	executions, err := store.ExecutionsByWorkflow(t.Context(), definition.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}

func TestSchedulerNotDueYet(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	now := time.Date(2026, 3, 1, 12, 1, 0, 0, time.UTC)
	scheduler := newTestScheduler(store, now)

	definition := scheduleDefinition("acme", "0 * * * *", []models.Step{
		{Name: "done", Type: models.StepTypeEnd},
	})
	require.NoError(t, store.SaveWorkflow(t.Context(), definition))

	// Last run covered the top of the hour; next occurrence is 13:00.
	require.NoError(t, store.CreateExecution(t.Context(), &models.WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: definition.ID,
		TenantID:   definition.TenantID,
		Status:     models.ExecutionStatusCompleted,
		StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}))

	summary, err := scheduler.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scheduled)
	assert.Equal(t, 1, summary.Skipped)
}

func TestSchedulerInvalidCronExpression(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	scheduler := newTestScheduler(store, time.Now().UTC())

	definition := scheduleDefinition("acme", "not a cron", []models.Step{
		{Name: "done", Type: models.StepTypeEnd},
	})
	require.NoError(t, store.SaveWorkflow(t.Context(), definition))

	summary, err := scheduler.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Scheduled)
}

func TestSchedulerFirstOccurrenceAnchoredOnCreation(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	now := time.Date(2026, 3, 1, 12, 4, 0, 0, time.UTC)
	scheduler := newTestScheduler(store, now)

	// Created after the 12:00 boundary and before 12:05: no boundary has
	// elapsed yet, so the first occurrence is the creation time itself.
	definition := scheduleDefinition("acme", "*/5 * * * *", []models.Step{
		{Name: "done", Type: models.StepTypeEnd},
	})
	definition.CreatedAt = time.Date(2026, 3, 1, 12, 3, 0, 0, time.UTC)
	require.NoError(t, store.SaveWorkflow(t.Context(), definition))

	summary, err := scheduler.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scheduled)

	executions, err := store.ExecutionsByWorkflow(t.Context(), definition.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, executions, 1)
	assert.Equal(t, definition.CreatedAt, executions[0].StartedAt)
}

// firstRunPersistence hides existing executions from the due computation,
// reproducing a second pass that listed state before the first pass's insert
// became visible.
type firstRunPersistence struct {
	persistence.Persistence
}

func (p *firstRunPersistence) LatestExecutionForWorkflow(_ context.Context, _ string) (*models.WorkflowExecution, error) {
	return nil, nil
}

func TestSchedulerConcurrentFirstRunComputesSameID(t *testing.T) {
	t.Parallel()

	store := memory.NewPersistence()
	reg := newTestRegistry()

	definition := scheduleDefinition("acme", "*/5 * * * *", []models.Step{
		{Name: "done", Type: models.StepTypeEnd},
	})
	definition.CreatedAt = time.Date(2026, 3, 1, 11, 58, 0, 0, time.UTC)
	require.NoError(t, store.SaveWorkflow(t.Context(), definition))

	first := newTestScheduler(store, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	summary, err := first.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Scheduled)

	// A concurrent pass with a clock one second ahead still anchors the
	// first occurrence on the 12:00 boundary, computes the same execution ID
	// and loses the insert.
	second := NewScheduler(&firstRunPersistence{Persistence: store}, NewExecutor(store, reg, testLogger()), testLogger())
	second.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC) }

	summary, err = second.ScheduleWorkflows(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scheduled)
	assert.Equal(t, 1, summary.Skipped)

	executions, err := store.ExecutionsByWorkflow(t.Context(), definition.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, executions, 1)
}
