package sendemail

import (
	"github.com/quivela/relay/pkg/protocol"
)

// ActionFactory creates send-email actions bound to a Mailer.
type ActionFactory struct {
	mailer Mailer
}

func NewActionFactory(mailer Mailer) *ActionFactory {
	return &ActionFactory{mailer: mailer}
}

func (*ActionFactory) ID() string {
	return "send-email"
}

func (*ActionFactory) Name() string {
	return "Send Email"
}

func (*ActionFactory) Description() string {
	return "Sends an email through the configured gateway. Recipient, subject and body support templating."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.mailer)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"description": "Recipient email address. Supports templating.",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Email subject. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Email body. Supports templating.",
			},
		},
		"required":             []string{"to"},
		"additionalProperties": false,
	}
}
