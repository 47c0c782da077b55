// Package main provides the relay API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/quivela/relay/pkg/eventbus"
	"github.com/quivela/relay/pkg/persistence"
	"github.com/quivela/relay/pkg/registry"
	"github.com/quivela/relay/pkg/web"
	"github.com/quivela/relay/pkg/webhook"
	"github.com/quivela/relay/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	cronSecret  string
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	p persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	cronSecret string,
) *API {
	return &API{
		logger:      logger,
		persistence: p,
		registry:    reg,
		eventBus:    eventBus,
		cronSecret:  cronSecret,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	executor := workflow.NewExecutor(a.persistence, a.registry, a.logger)
	repository := workflow.NewRepository(a.persistence)
	trigger := workflow.NewTriggerService(a.persistence, executor, a.logger)
	scheduler := workflow.NewScheduler(a.persistence, executor, a.logger)
	resumer := workflow.NewResumer(a.persistence, executor, a.logger)
	delivery := webhook.NewDeliveryService(a.persistence, a.logger)
	manager := webhook.NewManager(a.persistence, delivery, a.eventBus, a.logger)

	handlers := web.NewAPIHandlers(
		repository, trigger, scheduler, resumer,
		manager, delivery,
		a.persistence, a.registry, a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Relay API")
	})

	app.Post("/cron/workflows", handlers.RunCron, web.CronAuth(a.cronSecret))

	w := app.Group("/workflows", web.RequireTenant())
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/trigger", handlers.TriggerWorkflow)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := app.Group("/executions", web.RequireTenant())
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)

	wh := app.Group("/webhooks", web.RequireTenant())
	wh.Get("/events", handlers.GetWebhookEvents)
	wh.Post("/events", handlers.PublishEvent)
	wh.Get("/", handlers.GetSubscriptions)
	wh.Post("/", handlers.CreateSubscription)
	wh.Get("/:id", handlers.GetSubscription)
	wh.Put("/:id", handlers.UpdateSubscription)
	wh.Delete("/:id", handlers.DeleteSubscription)
	wh.Get("/:id/logs", handlers.GetDeliveryLogs)
	wh.Get("/:id/stats", handlers.GetDeliveryStats)
	wh.Get("/:id/replay", handlers.GetReplayCandidates)
	wh.Post("/:id/replay", handlers.ReplayDelivery)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
