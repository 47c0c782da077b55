package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/persistence"
)

// schedulerNamespace seeds the deterministic execution IDs for scheduled
// occurrences, keeping occurrence creation idempotent across processes.
var schedulerNamespace = uuid.MustParse("3f8a1c6e-9b2d-4f7a-8c1e-5d0b2a9e4f63")

// Summary reports what one scheduler or resumer pass did.
type Summary struct {
	Scheduled int `json:"scheduled"`
	Resumed   int `json:"resumed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Scheduler creates executions for schedule-triggered workflows whose cron
// expression is due. It is intended to be invoked periodically from the cron
// endpoint or the runner and is idempotent per occurrence.
type Scheduler struct {
	persistence persistence.Persistence
	executor    *Executor
	logger      *slog.Logger
	now         func() time.Time
}

func NewScheduler(persistence persistence.Persistence, executor *Executor, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: persistence,
		executor:    executor,
		logger:      logger.With("module", "workflow_scheduler"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ScheduleWorkflows lists enabled schedule workflows, creates an execution for
// each due occurrence and drives it until it waits, completes or fails.
func (s *Scheduler) ScheduleWorkflows(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	workflows, err := s.persistence.EnabledWorkflowsByTriggerType(ctx, models.TriggerTypeSchedule)
	if err != nil {
		return summary, err
	}

	now := s.now()

	for _, definition := range workflows {
		logger := s.logger.With("workflow_id", definition.ID)

		occurrence, due, err := s.dueOccurrence(ctx, definition, now)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to compute due occurrence", "error", err)

			summary.Failed++

			continue
		}

		if !due {
			summary.Skipped++

			continue
		}

		execution := &models.WorkflowExecution{
			// Deterministic per (workflow, occurrence): a concurrent pass
			// computing the same occurrence inserts the same ID and loses.
			ID:          uuid.NewSHA1(schedulerNamespace, []byte(definition.ID+occurrence.Format(time.RFC3339))).String(),
			WorkflowID:  definition.ID,
			TenantID:    definition.TenantID,
			Status:      models.ExecutionStatusRunning,
			CurrentStep: 0,
			TriggerPayload: map[string]any{
				"trigger":      "schedule",
				"scheduled_at": occurrence.Format(time.RFC3339),
			},
			StartedAt: occurrence,
		}

		err = s.persistence.CreateExecution(ctx, execution)
		if err != nil {
			if errors.Is(err, persistence.ErrExecutionExists) {
				logger.InfoContext(ctx, "Occurrence already scheduled, skipping")

				summary.Skipped++

				continue
			}

			logger.ErrorContext(ctx, "Failed to create execution", "error", err)

			summary.Failed++

			continue
		}

		summary.Scheduled++

		err = s.executor.ExecuteFrom(ctx, execution, definition)
		if err != nil {
			logger.ErrorContext(ctx, "Execution pass failed", "execution_id", execution.ID, "error", err)

			summary.Failed++

			continue
		}

		summary.Succeeded++
	}

	return summary, nil
}

// dueOccurrence returns the next occurrence after the workflow's last run and
// whether it has already passed. A workflow that never ran is due immediately.
func (s *Scheduler) dueOccurrence(ctx context.Context, definition *models.WorkflowDefinition, now time.Time) (time.Time, bool, error) {
	expr := definition.CronExpression()

	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, false, err
	}

	latest, err := s.persistence.LatestExecutionForWorkflow(ctx, definition.ID)
	if err != nil {
		return time.Time{}, false, err
	}

	if latest == nil {
		return firstOccurrence(schedule, definition.CreatedAt, now), true, nil
	}

	next := schedule.Next(latest.StartedAt)

	return next, !next.After(now), nil
}

// firstOccurrence anchors a never-ran workflow's first occurrence on fixed
// points of the definition rather than the pass's wall clock, so concurrent
// passes compute the same deterministic execution ID. It returns the latest
// schedule boundary between creation and now, or the creation time itself
// when no boundary has elapsed yet.
func firstOccurrence(schedule cron.Schedule, createdAt, now time.Time) time.Time {
	occurrence := createdAt
	if occurrence.IsZero() || occurrence.After(now) {
		return now
	}

	for next := schedule.Next(occurrence); next.After(occurrence) && !next.After(now); next = schedule.Next(occurrence) {
		occurrence = next
	}

	return occurrence
}
