// Package updaterecord provides the update-record action handler. The
// back-office database is an external collaborator behind the RecordUpdater
// interface; this core never reaches into its tables directly.
package updaterecord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/protocol"
	"github.com/quivela/relay/pkg/template"
)

// RecordUpdater applies a field update to one record of an external entity.
type RecordUpdater interface {
	UpdateRecord(ctx context.Context, tenantID, entity, recordID string, fields map[string]any) error
}

type Action struct {
	Entity   string
	RecordID string
	Fields   map[string]any
	updater  RecordUpdater
}

func NewAction(config map[string]any, updater RecordUpdater) (*Action, error) {
	entity, ok := config["entity"].(string)
	if !ok || entity == "" {
		return nil, fmt.Errorf("missing or invalid 'entity' in configuration")
	}

	recordID, ok := config["record_id"].(string)
	if !ok || recordID == "" {
		return nil, fmt.Errorf("missing or invalid 'record_id' in configuration")
	}

	fields, _ := config["fields"].(map[string]any)
	if len(fields) == 0 {
		return nil, fmt.Errorf("missing or empty 'fields' in configuration")
	}

	return &Action{Entity: entity, RecordID: recordID, Fields: fields, updater: updater}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "update-record", "entity", a.Entity)
	logger.InfoContext(ctx, "Executing update-record action")

	recordID, err := template.RenderWithContext(a.RecordID, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render record id: %w", err)
	}

	fields := make(map[string]any, len(a.Fields))

	for key, value := range a.Fields {
		if str, ok := value.(string); ok {
			rendered, err := template.RenderWithContext(str, executionCtx)
			if err != nil {
				return nil, fmt.Errorf("failed to render field %q: %w", key, err)
			}

			fields[key] = rendered

			continue
		}

		fields[key] = value
	}

	err = a.updater.UpdateRecord(ctx, executionCtx.TenantID, a.Entity, recordID, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}

	return map[string]any{"entity": a.Entity, "record_id": recordID}, nil
}

// ActionFactory creates update-record actions bound to a RecordUpdater.
type ActionFactory struct {
	updater RecordUpdater
}

func NewActionFactory(updater RecordUpdater) *ActionFactory {
	return &ActionFactory{updater: updater}
}

func (*ActionFactory) ID() string {
	return "update-record"
}

func (*ActionFactory) Name() string {
	return "Update Record"
}

func (*ActionFactory) Description() string {
	return "Updates fields of one record in the back-office store."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.updater)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entity": map[string]any{
				"type":        "string",
				"description": "Entity name, e.g. orders or customers.",
			},
			"record_id": map[string]any{
				"type":        "string",
				"description": "Record identifier. Supports templating.",
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Field values to set. String values support templating.",
			},
		},
		"required":             []string{"entity", "record_id", "fields"},
		"additionalProperties": false,
	}
}
