package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/quivela/relay/pkg/cmd"
	"github.com/quivela/relay/pkg/config"
	"github.com/quivela/relay/pkg/log"
	"github.com/quivela/relay/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("runner")

	command := &cli.Command{
		Name:                  "relay-runner",
		Usage:                 "Run scheduling, resume and delivery-retry passes",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the runner YAML configuration file",
				Value:   "./runner.yaml",
				Sources: cli.EnvVars("RUNNER_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Run a single pass and exit",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Relay runner")

			cfg := config.LoadRunnerConfigOrDefault(command.String("config"))
			if err := config.ValidateRunnerConfig(cfg); err != nil {
				return err
			}

			tracer, err := otelhelper.NewTracer(ctx, "relay-runner")
			if err != nil {
				return err
			}

			registry := cmd.NewRegistry(logger, cmd.Senders{})
			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			if eventBus != nil {
				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			runner := NewRunner(logger, persistence, registry, eventBus, tracer, cfg)

			if command.Bool("once") {
				return runner.RunOnce(ctx)
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runner.Start(ctx, cfg.PassInterval)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
