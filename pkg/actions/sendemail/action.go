// Package sendemail provides the send-email action handler. The actual email
// gateway is an external collaborator behind the Mailer interface.
package sendemail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/template"
)

// Mailer is the external email gateway.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type Action struct {
	To      string
	Subject string
	Body    string
	mailer  Mailer
}

func NewAction(config map[string]any, mailer Mailer) (*Action, error) {
	to, ok := config["to"].(string)
	if !ok || to == "" {
		return nil, fmt.Errorf("missing or invalid 'to' in configuration")
	}

	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	return &Action{To: to, Subject: subject, Body: body, mailer: mailer}, nil
}

func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("action_type", "send-email")
	logger.InfoContext(ctx, "Executing send-email action")

	to, err := template.RenderWithContext(a.To, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render recipient: %w", err)
	}

	subject, err := template.RenderWithContext(a.Subject, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}

	body, err := template.RenderWithContext(a.Body, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	err = a.mailer.SendEmail(ctx, to, subject, body)
	if err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	return map[string]any{"sent_to": to, "subject": subject}, nil
}
