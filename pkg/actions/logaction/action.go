// Package logaction provides the log action handler, mostly useful for
// debugging workflow definitions.
package logaction

import (
	"context"
	"log/slog"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/protocol"
	"github.com/quivela/relay/pkg/template"
)

type Action struct {
	Message string
	Level   string
}

func NewAction(config map[string]any) *Action {
	message, _ := config["message"].(string)
	level, _ := config["level"].(string)

	if level == "" {
		level = "info"
	}

	return &Action{Message: message, Level: level}
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "log")

	message, err := template.RenderWithContext(a.Message, executionCtx)
	if err != nil {
		return nil, err
	}

	switch a.Level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn", "warning":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{"message": message}, nil
}

// ActionFactory creates log actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return "log"
}

func (*ActionFactory) Name() string {
	return "Log"
}

func (*ActionFactory) Description() string {
	return "Logs a message at a specified level. Supports templating for dynamic content."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAction(config), nil
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"required": []string{"message"},
	}
}
