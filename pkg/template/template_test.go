package template

import (
	"testing"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// Numbers always decode to float64
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)
}

func TestRender_ObjectConstruction(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{
			"name": "Alice",
		},
		"orders": []any{1, 2},
	}

	result, err := Render(`{
		"user_name": "{{ .user.name }}",
		"total_orders": {{ len .orders }}
	}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", resultMap["user_name"])
	assert.Equal(t, 2.0, resultMap["total_orders"])
}

func TestRender_InvalidJSON(t *testing.T) {
	_, err := Render(`{ "broken": {{ .missing }} }`, map[string]any{})
	require.Error(t, err)
}

func TestRender_ParseError(t *testing.T) {
	_, err := Render("{{ .name ", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestRenderWithState(t *testing.T) {
	state := models.NewExecutionState(map[string]any{"ticket": "T-1"})
	state.Variables[models.VariableLastOutput] = map[string]any{"category": "billing"}
	state.NodeResults["classify"] = map[string]any{"score": 0.9}

	scope := Scope{ExecutionID: "exec-1", WorkflowID: "wf-1", State: state}

	result, err := RenderWithState("{{ .variables.input.ticket }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "T-1", result)

	result, err = RenderWithState(`{{ eq .vars.lastOutput.category "billing" }}`, scope)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = RenderWithState("{{ .node_results.classify.score }}", scope)
	require.NoError(t, err)
	assert.Equal(t, 0.9, result)

	result, err = RenderWithState("{{ .execution.id }}/{{ .execution.workflow_id }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "exec-1/wf-1", result)
}

func TestRenderStringWithState_KeepsText(t *testing.T) {
	scope := Scope{State: models.NewExecutionState(map[string]any{"n": 42})}

	out, err := RenderStringWithState("plain text", scope)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderStringWithState("value={{ .variables.input.n }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "value=42", out)
}

func TestRenderValue_Nested(t *testing.T) {
	scope := Scope{State: models.NewExecutionState(map[string]any{"city": "Lisbon", "days": 3})}

	out, err := RenderValue(map[string]any{
		"location": "{{ .variables.input.city }}",
		"window":   []any{"{{ .variables.input.days }}", "static"},
		"units":    "metric",
		"limit":    5,
	}, scope)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"location": "Lisbon",
		"window":   []any{3.0, "static"},
		"units":    "metric",
		"limit":    5,
	}, out)
}
