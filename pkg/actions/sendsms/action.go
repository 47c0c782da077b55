// Package sendsms provides the send-sms action handler. The SMS provider is an
// external collaborator behind the Texter interface.
package sendsms

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/protocol"
	"github.com/quivela/relay/pkg/template"
)

// Texter is the external SMS provider.
type Texter interface {
	SendSMS(ctx context.Context, phone, message string) error
}

type Action struct {
	Phone   string
	Message string
	texter  Texter
}

func NewAction(config map[string]any, texter Texter) (*Action, error) {
	phone, ok := config["phone"].(string)
	if !ok || phone == "" {
		return nil, fmt.Errorf("missing or invalid 'phone' in configuration")
	}

	message, _ := config["message"].(string)

	return &Action{Phone: phone, Message: message, texter: texter}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send-sms")
	logger.InfoContext(ctx, "Executing send-sms action")

	phone, err := template.RenderWithContext(a.Phone, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render phone: %w", err)
	}

	message, err := template.RenderWithContext(a.Message, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render message: %w", err)
	}

	err = a.texter.SendSMS(ctx, phone, message)
	if err != nil {
		return nil, fmt.Errorf("failed to send sms: %w", err)
	}

	return map[string]any{"sent_to": phone}, nil
}

// ActionFactory creates send-sms actions bound to a Texter.
type ActionFactory struct {
	texter Texter
}

func NewActionFactory(texter Texter) *ActionFactory {
	return &ActionFactory{texter: texter}
}

func (*ActionFactory) ID() string {
	return "send-sms"
}

func (*ActionFactory) Name() string {
	return "Send SMS"
}

func (*ActionFactory) Description() string {
	return "Sends an SMS through the configured provider. Phone and message support templating."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.texter)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"phone": map[string]any{
				"type":        "string",
				"description": "Recipient phone number. Supports templating.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "SMS text. Supports templating.",
			},
		},
		"required":             []string{"phone"},
		"additionalProperties": false,
	}
}
