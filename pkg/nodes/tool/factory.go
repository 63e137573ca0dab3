// Package tool provides the direct tool invocation node executor.
package tool

import (
	"errors"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
)

// ToolExecutorFactory creates ToolExecutor instances.
type ToolExecutorFactory struct{}

// NewToolExecutorFactory creates a new tool executor factory.
func NewToolExecutorFactory() protocol.ExecutorFactory {
	return &ToolExecutorFactory{}
}

// Create creates a new ToolExecutor instance.
func (f *ToolExecutorFactory) Create(resources protocol.Resources) (protocol.Executor, error) {
	if resources.Tools == nil {
		return nil, errors.New("tool executor requires a tool invoker")
	}

	return NewToolExecutor(resources.Tools, resources.Logger), nil
}

// Kind returns the node kind.
func (f *ToolExecutorFactory) Kind() models.NodeKind {
	return models.NodeKindTool
}

// Name returns the factory name.
func (f *ToolExecutorFactory) Name() string {
	return "Tool"
}

// Description returns the factory description.
func (f *ToolExecutorFactory) Description() string {
	return "Invokes one tool on a remote tool server and stores its result as the last output"
}

// Schema returns the JSON schema for tool node data.
func (f *ToolExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"server_url": map[string]any{
				"type":        "string",
				"description": "Tool server URL. Supports templating",
				"examples": []string{
					"https://tools.example.com/mcp",
					"{{.variables.input.tool_server}}",
				},
			},
			"tool": map[string]any{
				"type":        "string",
				"description": "Name of the tool to call",
			},
			"arguments": map[string]any{
				"type":        "object",
				"description": "Tool arguments. String values support templating",
				"examples": []map[string]any{
					{"ticket_id": "{{.variables.input.ticket_id}}", "limit": 10},
				},
			},
			"auth_credential": map[string]any{
				"type":        "string",
				"description": "Bearer token sent to the tool server. Supports templating",
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Per-call timeout in seconds",
				"default":     30,
				"minimum":     1,
				"maximum":     300,
			},
		},
		"required": []string{"server_url", "tool"},
	}
}
