package extraction

import (
	"errors"

	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
)

// ExtractionExecutorFactory creates ExtractionExecutor instances.
type ExtractionExecutorFactory struct{}

// NewExtractionExecutorFactory creates a new extraction executor factory.
func NewExtractionExecutorFactory() protocol.ExecutorFactory {
	return &ExtractionExecutorFactory{}
}

// Create creates a new ExtractionExecutor instance.
func (f *ExtractionExecutorFactory) Create(resources protocol.Resources) (protocol.Executor, error) {
	if resources.Models == nil {
		return nil, errors.New("extraction executor requires a model client")
	}

	resolver := resources.Resolver
	if resolver == nil {
		resolver = llm.NewResolver()
	}

	return NewExtractionExecutor(resources.Models, resolver, resources.Tools, resources.Logger), nil
}

// Kind returns the node kind.
func (f *ExtractionExecutorFactory) Kind() models.NodeKind {
	return models.NodeKindExtraction
}

// Name returns the factory name.
func (f *ExtractionExecutorFactory) Name() string {
	return "Extraction"
}

// Description returns the factory description.
func (f *ExtractionExecutorFactory) Description() string {
	return "Asks a language model to extract structured data from the run input, optionally calling remote tools"
}

// Schema returns the JSON schema for extraction node data.
func (f *ExtractionExecutorFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"model": map[string]any{
				"type":        "string",
				"description": "Model identifier in provider/model form. Unqualified names use the default provider",
				"examples":    []string{"openai/gpt-4o-mini", "anthropic/claude-3-5-sonnet-latest", "gpt-4o"},
			},
			"instructions": map[string]any{
				"type":        "string",
				"description": "System instructions for the model. Supports templating",
			},
			"output_schema": map[string]any{
				"type":        "object",
				"description": "JSON schema the model output must conform to",
			},
			"tools": map[string]any{
				"type":        "array",
				"description": "Remote tools the model may call before answering",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"server_url":      map[string]any{"type": "string"},
						"name":            map[string]any{"type": "string"},
						"description":     map[string]any{"type": "string"},
						"input_schema":    map[string]any{"type": "object"},
						"auth_credential": map[string]any{"type": "string"},
					},
					"required": []string{"server_url", "name"},
				},
			},
			"max_tool_rounds": map[string]any{
				"type":        "number",
				"description": "Maximum number of tool call rounds",
				"default":     DefaultMaxToolRounds,
				"minimum":     1,
			},
		},
		"required": []string{"instructions"},
	}
}
