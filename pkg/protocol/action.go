// Package protocol defines the contracts between the workflow executor and
// pluggable action handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/quivela/relay/pkg/models"
)

// Action is one executable effect of an action step. Implementations are
// external collaborators (email gateway, SMS provider, HTTP endpoint); the
// executor only cares about the returned output and error.
type Action interface {
	Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory creates Action instances from step configuration. ID is the
// action type string referenced by action steps; Schema describes the accepted
// configuration as JSON Schema and is enforced by the registry before Create
// is called.
type ActionFactory interface {
	ID() string
	Name() string
	Description() string
	Schema() map[string]any
	Create(config map[string]any) (Action, error)
}
