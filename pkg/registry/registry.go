// Package registry provides the action handler registry used by the workflow
// executor to resolve action steps by type.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/quivela/relay/pkg/protocol"
)

type Registry struct {
	logger          *slog.Logger
	actionFactories map[string]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[string]protocol.ActionFactory),
	}
}

func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	r.actionFactories[actionFactory.ID()] = actionFactory
}

// CreateAction resolves the factory for actionType, validates config against
// the factory's schema and builds the action.
func (r *Registry) CreateAction(actionType string, config map[string]any) (protocol.Action, error) {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	err := r.validateConfig(factory, config)
	if err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// AvailableActions returns the registered action type IDs, sorted.
func (r *Registry) AvailableActions() []string {
	types := make([]string, 0, len(r.actionFactories))
	for actionType := range r.actionFactories {
		types = append(types, actionType)
	}

	sort.Strings(types)

	return types
}

// HealthCheck reports registry readiness for the health endpoint.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.actionFactories) == 0 {
		return "no action types registered", false
	}

	return fmt.Sprintf("%d action types registered", len(r.actionFactories)), true
}

// IsActionRegistered checks if an action type is registered.
func (r *Registry) IsActionRegistered(actionType string) bool {
	_, exists := r.actionFactories[actionType]

	return exists
}

func (r *Registry) validateConfig(factory protocol.ActionFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for action '%s': %w", factory.ID(), err)
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config for action '%s': %w", factory.ID(), err)
	}

	if !result.Valid() {
		detail := ""
		for _, desc := range result.Errors() {
			detail += desc.String() + "; "
		}

		return fmt.Errorf("invalid configuration for action '%s': %s", factory.ID(), detail)
	}

	return nil
}
