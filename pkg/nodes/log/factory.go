package log

import (
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
)

// LogExecutorFactory creates LogExecutor instances.
type LogExecutorFactory struct{}

// Create creates a new LogExecutor instance.
func (f *LogExecutorFactory) Create(resources protocol.Resources) (protocol.Executor, error) {
	return NewLogExecutor(resources.Logger), nil
}

// Kind returns the node kind.
func (f *LogExecutorFactory) Kind() models.NodeKind {
	return models.NodeKindLog
}

// Name returns the factory name.
func (f *LogExecutorFactory) Name() string {
	return "Log"
}

// Description returns the factory description.
func (f *LogExecutorFactory) Description() string {
	return "Logs messages at different levels (debug, info, warn, error) with template support for dynamic content"
}

// Schema returns the JSON schema for Log node data.
func (f *LogExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with execution state data.",
				"examples": []string{
					"Processing ticket: {{.variables.input.ticket_id}}",
					"Classified as {{.variables.lastOutput.category}}",
					"Approved by {{.variables.approval.decided_by}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"enum":        []string{"debug", "info", "warn", "error"},
				"default":     "info",
			},
		},
		"required": []string{"message"},
	}
}

// NewLogExecutorFactory creates a new factory instance.
func NewLogExecutorFactory() protocol.ExecutorFactory {
	return &LogExecutorFactory{}
}
