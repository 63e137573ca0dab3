package transform

import (
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
)

// TransformExecutorFactory creates TransformExecutor instances.
type TransformExecutorFactory struct{}

// NewTransformExecutorFactory creates a new transform executor factory.
func NewTransformExecutorFactory() protocol.ExecutorFactory {
	return &TransformExecutorFactory{}
}

// Create creates a new TransformExecutor instance.
func (f *TransformExecutorFactory) Create(resources protocol.Resources) (protocol.Executor, error) {
	return NewTransformExecutor(), nil
}

// Kind returns the node kind.
func (f *TransformExecutorFactory) Kind() models.NodeKind {
	return models.NodeKindTransform
}

// Name returns the factory name.
func (f *TransformExecutorFactory) Name() string {
	return "Transform"
}

// Description returns the factory description.
func (f *TransformExecutorFactory) Description() string {
	return "Assigns run variables from Go templates rendered against the execution state"
}

// Schema returns the JSON schema for transform node data.
func (f *TransformExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"assignments": map[string]any{
				"type":        "object",
				"description": "Variable name to template. Rendered values are decoded as JSON, numbers or booleans when possible",
				"additionalProperties": map[string]any{
					"type": "string",
				},
				"examples": []map[string]any{
					{"priority": "{{.variables.lastOutput.priority}}"},
					{"summary": `{"ticket": "{{.variables.input.ticket_id}}", "approved": true}`},
				},
			},
		},
		"required": []string{"assignments"},
	}
}
