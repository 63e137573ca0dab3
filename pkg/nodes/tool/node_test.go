package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/flowgate/pkg/mocks"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/toolclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRequest(data *models.ToolData) protocol.Request {
	state := models.NewExecutionState(map[string]any{"ticket_id": "T-9", "host": "tools.local"})
	state.Variables["token"] = "secret"

	return protocol.Request{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		Node:        models.NewNode("lookup", data),
		State:       state,
	}
}

func TestToolExecutor_Execute(t *testing.T) {
	invoker := &mocks.MockInvoker{}
	invoker.On("Invoke", mock.Anything, toolclient.Invocation{
		ServerURL: "http://tools.local/mcp",
		Tool:      "get_ticket",
		Params:    map[string]any{"id": "T-9", "limit": 5, "tags": []any{"T-9"}},
		AuthToken: "secret",
		Timeout:   10 * time.Second,
	}).Return(map[string]any{"status": "open"}, nil).Once()

	executor := NewToolExecutor(invoker, nil)

	result, err := executor.Execute(context.Background(), newRequest(&models.ToolData{
		ServerURL:      "http://{{.variables.input.host}}/mcp",
		Tool:           "get_ticket",
		Arguments:      map[string]any{"id": "{{.variables.input.ticket_id}}", "limit": 5, "tags": []any{"{{.variables.input.ticket_id}}"}},
		AuthCredential: "{{.variables.token}}",
		TimeoutSeconds: 10,
	}))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"lastOutput": map[string]any{"status": "open"}}, result.Variables)
	assert.Equal(t, map[string]any{"status": "open"}, result.Output)
	assert.Equal(t, []string{"get_ticket"}, result.ToolsUsed)
	invoker.AssertExpectations(t)
}

func TestToolExecutor_NoArguments(t *testing.T) {
	invoker := &mocks.MockInvoker{}
	invoker.On("Invoke", mock.Anything, mock.MatchedBy(func(inv toolclient.Invocation) bool {
		return inv.Params == nil && inv.AuthToken == "" && inv.Timeout == 0
	})).Return("pong", nil).Once()

	result, err := NewToolExecutor(invoker, nil).Execute(context.Background(), newRequest(&models.ToolData{
		ServerURL: "http://tools.local",
		Tool:      "ping",
	}))
	require.NoError(t, err)
	assert.Equal(t, "pong", result.Output)
	invoker.AssertExpectations(t)
}

func TestToolExecutor_InvokeErrorFailsNode(t *testing.T) {
	upstream := &toolclient.Error{Tool: "ping", StatusCode: 502, Err: toolclient.ErrUpstream}

	invoker := &mocks.MockInvoker{}
	invoker.On("Invoke", mock.Anything, mock.Anything).Return(nil, upstream).Once()

	_, err := NewToolExecutor(invoker, nil).Execute(context.Background(), newRequest(&models.ToolData{
		ServerURL: "http://tools.local",
		Tool:      "ping",
	}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, toolclient.ErrUpstream))
}

func TestToolExecutor_InvalidData(t *testing.T) {
	invoker := &mocks.MockInvoker{}
	executor := NewToolExecutor(invoker, nil)

	tests := []struct {
		name string
		data *models.ToolData
	}{
		{"missing tool", &models.ToolData{ServerURL: "http://x"}},
		{"missing server", &models.ToolData{Tool: "ping"}},
		{"timeout too large", &models.ToolData{ServerURL: "http://x", Tool: "ping", TimeoutSeconds: 301}},
		{"broken template", &models.ToolData{ServerURL: "{{ .x", Tool: "ping"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executor.Execute(context.Background(), newRequest(tt.data))
			require.Error(t, err)
		})
	}

	invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestToolExecutorFactory(t *testing.T) {
	factory := NewToolExecutorFactory()

	assert.Equal(t, models.NodeKindTool, factory.Kind())
	assert.Equal(t, []string{"server_url", "tool"}, factory.Schema()["required"])

	_, err := factory.Create(protocol.Resources{})
	require.Error(t, err)

	executor, err := factory.Create(protocol.Resources{Tools: &mocks.MockInvoker{}})
	require.NoError(t, err)
	assert.IsType(t, &ToolExecutor{}, executor)
}
