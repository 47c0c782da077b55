package cmd

import (
	"context"
	"log/slog"
)

// Log-only gateway stubs used when no real integrations are wired in. They
// keep workflows executable in development without sending anything.

type logMailer struct {
	logger *slog.Logger
}

func (m *logMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "Email send (stub)", "to", to, "subject", subject, "body_length", len(body))

	return nil
}

type logTexter struct {
	logger *slog.Logger
}

func (t *logTexter) SendSMS(ctx context.Context, phone, message string) error {
	t.logger.InfoContext(ctx, "SMS send (stub)", "phone", phone, "message_length", len(message))

	return nil
}

type logUpdater struct {
	logger *slog.Logger
}

func (u *logUpdater) UpdateRecord(ctx context.Context, tenantID, entity, recordID string, fields map[string]any) error {
	u.logger.InfoContext(ctx, "Record update (stub)", "tenant_id", tenantID, "entity", entity, "record_id", recordID, "fields", len(fields))

	return nil
}
