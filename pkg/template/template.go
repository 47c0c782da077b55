// Package template provides templating for dynamic action configuration.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/quivela/relay/pkg/models"
)

// RenderWithContext renders a template string against the execution context.
// Templates address the captured trigger payload as .trigger and accumulated
// step outputs as .steps.
func RenderWithContext(input string, executionCtx models.ExecutionContext) (string, error) {
	data := map[string]any{
		"trigger": executionCtx.TriggerPayload,
		"steps":   executionCtx.StepOutputs,
		"execution": map[string]any{
			"id":          executionCtx.ExecutionID,
			"workflow_id": executionCtx.WorkflowID,
			"tenant_id":   executionCtx.TenantID,
		},
	}

	return Render(input, data)
}

// Render parses and executes one template string.
func Render(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := template.
		New("action").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
		}).
		Option("missingkey=zero").
		Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var builder strings.Builder

	err = tmpl.Execute(&builder, data)
	if err != nil {
		return "", fmt.Errorf("failed to render template '%s': %w", templateStr, err)
	}

	return builder.String(), nil
}
