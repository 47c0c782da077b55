package httpcall

import (
	"github.com/quivela/relay/pkg/protocol"
)

// ActionFactory creates http-call actions.
type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (f *ActionFactory) ID() string {
	return "http-call"
}

func (f *ActionFactory) Name() string {
	return "HTTP Call"
}

func (f *ActionFactory) Description() string {
	return "Performs an HTTP request to a configured URL with optional headers and body."
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config)
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to send the request to. Supports templating against the execution context.",
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD"},
			},
			"headers": map[string]any{
				"type":                 "object",
				"description":          "HTTP headers to include. Values support templating.",
				"additionalProperties": map[string]any{"type": "string"},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body content. Supports templating.",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     120,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
