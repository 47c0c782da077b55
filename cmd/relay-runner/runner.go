// Package main provides the relay runner: the background process that runs
// scheduling, resume and delivery-retry passes and consumes intake events.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/quivela/relay/pkg/config"
	"github.com/quivela/relay/pkg/eventbus"
	"github.com/quivela/relay/pkg/intake"
	"github.com/quivela/relay/pkg/otelhelper"
	"github.com/quivela/relay/pkg/persistence"
	"github.com/quivela/relay/pkg/registry"
	"github.com/quivela/relay/pkg/webhook"
	"github.com/quivela/relay/pkg/workflow"
)

type Runner struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer

	scheduler *workflow.Scheduler
	resumer   *workflow.Resumer
	trigger   *workflow.TriggerService
	delivery  *webhook.DeliveryService
	manager   *webhook.Manager
	intake    *intake.Consumer

	cron *cron.Cron
}

func NewRunner(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	cfg config.RunnerConfig,
) *Runner {
	executor := workflow.NewExecutor(p, reg, logger)
	delivery := webhook.NewDeliveryService(p, logger)

	r := &Runner{
		logger:      logger,
		persistence: p,
		eventBus:    bus,
		tracer:      tracer,
		scheduler:   workflow.NewScheduler(p, executor, logger),
		resumer:     workflow.NewResumer(p, executor, logger),
		trigger:     workflow.NewTriggerService(p, executor, logger),
		delivery:    delivery,
		manager:     webhook.NewManager(p, delivery, bus, logger),
		cron:        cron.New(),
	}

	if cfg.Intake.Enabled {
		r.intake = intake.NewConsumer(cfg.Intake.Connection, cfg.Intake.Queue, logger)
	}

	return r
}

// RunOnce performs a single schedule/resume/retry pass.
func (r *Runner) RunOnce(ctx context.Context) error {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.pass")
	defer span.End()

	scheduled, err := r.scheduler.ScheduleWorkflows(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	resumed, err := r.resumer.ResumeWaitingExecutions(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	retried, err := r.delivery.ProcessDueRetries(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	r.logger.InfoContext(ctx, "Runner pass finished",
		"scheduled", scheduled.Scheduled,
		"resumed", resumed.Resumed,
		"retried", retried,
	)

	return nil
}

// Start runs passes on the configured interval and consumes intake and bus
// events until the context is cancelled.
func (r *Runner) Start(ctx context.Context, interval time.Duration) error {
	if r.eventBus != nil {
		if err := r.manager.RegisterHandlers(r.eventBus); err != nil {
			return err
		}

		if err := r.eventBus.Subscribe(ctx); err != nil {
			return err
		}
	}

	if r.intake != nil {
		err := r.intake.Start(ctx, func(ctx context.Context, msg intake.Message) error {
			if _, err := r.manager.Publish(ctx, msg.TenantID, msg.EventType, msg.Payload); err != nil {
				return err
			}

			r.trigger.TriggerForEvent(ctx, msg.TenantID, msg.EventType, msg.Payload)

			return nil
		})
		if err != nil {
			return err
		}
	}

	_, err := r.cron.AddFunc("@every "+interval.String(), func() {
		if err := r.RunOnce(ctx); err != nil {
			r.logger.ErrorContext(ctx, "Runner pass failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.InfoContext(ctx, "Runner started", "interval", interval.String())

	<-ctx.Done()

	stopCtx := r.cron.Stop()
	<-stopCtx.Done()

	if r.intake != nil {
		if err := r.intake.Stop(context.Background()); err != nil {
			r.logger.Error("Failed to stop intake consumer", "error", err)
		}
	}

	return nil
}
