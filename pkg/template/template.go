// Package template renders Go templates against a run's execution state.
package template

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/flowgate/pkg/models"
	json "github.com/goccy/go-json"
)

// Scope identifies the run a template is rendered for.
type Scope struct {
	ExecutionID string
	WorkflowID  string
	State       models.ExecutionState
}

// Data returns the template root object for the scope.
func (s Scope) Data() map[string]any {
	return s.State.TemplateData(s.ExecutionID, s.WorkflowID)
}

// RenderWithState renders input against the execution state and decodes the
// output into a typed value (object, array, number, bool or string).
func RenderWithState(input string, scope Scope) (any, error) {
	return Render(input, scope.Data())
}

// RenderStringWithState renders input and returns the raw text output.
func RenderStringWithState(input string, scope Scope) (string, error) {
	if !strings.Contains(input, "{{") {
		return input, nil
	}

	return execute(input, scope.Data())
}

// RenderValue walks maps and slices and renders every string leaf.
func RenderValue(value any, scope Scope) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}

		return RenderWithState(v, scope)
	case map[string]any:
		rendered := make(map[string]any, len(v))

		for key, item := range v {
			out, err := RenderValue(item, scope)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}

			rendered[key] = out
		}

		return rendered, nil
	case []any:
		rendered := make([]any, len(v))

		for i, item := range v {
			out, err := RenderValue(item, scope)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}

			rendered[i] = out
		}

		return rendered, nil
	default:
		return value, nil
	}
}

func Render(templateStr string, data any) (any, error) {
	rendered, err := execute(templateStr, data)
	if err != nil {
		return nil, err
	}

	result := strings.TrimSpace(rendered)

	// Try to parse as JSON if it looks like JSON
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

func execute(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("flowgate").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"json": func(v any) (string, error) {
				out, err := json.Marshal(v)

				return string(out), err
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}
