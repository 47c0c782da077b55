// Package httpcall provides the http-call action handler for workflow steps.
package httpcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quivela/relay/pkg/models"
	"github.com/quivela/relay/pkg/template"
)

const defaultTimeoutSeconds = 30

// Action performs an HTTP request to a configured URL with optional headers
// and body. URL, headers and body support templating against the execution
// context.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
}

// NewAction creates a new http-call action from configuration.
func NewAction(config map[string]any) (*Action, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, fmt.Errorf("missing or invalid 'url' in configuration")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds) * time.Second
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
	}, nil
}

// Execute performs the HTTP request and returns the response as step output.
func (a *Action) Execute(ctx context.Context, executionCtx models.ExecutionContext, logger *slog.Logger) (map[string]any, error) {
	logger = logger.With("module", "httpcall_action", "method", a.Method)
	logger.InfoContext(ctx, "Executing http-call action")

	url, err := template.RenderWithContext(a.URL, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render URL: %w", err)
	}

	body, err := template.RenderWithContext(a.Body, executionCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render body: %w", err)
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for key, value := range a.Headers {
		rendered, err := template.RenderWithContext(value, executionCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render header %q: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	client := &http.Client{Timeout: a.Timeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http call failed: %w", err)
	}

	defer func() {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http call returned status %d", resp.StatusCode)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(responseBody),
	}

	var parsed any
	if json.Unmarshal(responseBody, &parsed) == nil {
		output["json"] = parsed
	}

	return output, nil
}
