package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(data *models.LogData) protocol.Request {
	state := models.NewExecutionState(map[string]any{"user_name": "john_doe"})

	return protocol.Request{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Node:        models.NewNode("log-1", data),
		State:       state,
	}
}

func TestLogExecutor_Execute(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	executor := NewLogExecutor(logger)

	result, err := executor.Execute(context.Background(), newRequest(&models.LogData{
		Message: "Processing user: {{.variables.input.user_name}}",
		Level:   "warn",
	}))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"message": "Processing user: john_doe",
		"level":   "warn",
		"logged":  true,
	}, result.Output)
	assert.Nil(t, result.Variables)

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, `msg="Processing user: john_doe"`)
	assert.Contains(t, out, "execution_id=exec-1")
	assert.Contains(t, out, "node_id=log-1")
}

func TestLogExecutor_DefaultLevel(t *testing.T) {
	var buf bytes.Buffer

	executor := NewLogExecutor(slog.New(slog.NewTextHandler(&buf, nil)))

	result, err := executor.Execute(context.Background(), newRequest(&models.LogData{Message: "plain"}))
	require.NoError(t, err)
	assert.Equal(t, "info", result.Output.(map[string]any)["level"])
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestLogExecutor_Errors(t *testing.T) {
	executor := NewLogExecutor(nil)

	_, err := executor.Execute(context.Background(), newRequest(&models.LogData{Message: "x", Level: "loud"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")

	_, err = executor.Execute(context.Background(), newRequest(&models.LogData{Message: "{{ .variables.input"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render")

	request := newRequest(&models.LogData{})
	request.Node = models.NewNode("wrong", &models.TransformData{})

	_, err = executor.Execute(context.Background(), request)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected log data")
}

func TestLogExecutorFactory(t *testing.T) {
	factory := NewLogExecutorFactory()

	assert.Equal(t, models.NodeKindLog, factory.Kind())
	assert.Equal(t, "Log", factory.Name())
	assert.NotEmpty(t, factory.Description())
	assert.Equal(t, []string{"message"}, factory.Schema()["required"])

	executor, err := factory.Create(protocol.Resources{})
	require.NoError(t, err)
	assert.IsType(t, &LogExecutor{}, executor)
}
