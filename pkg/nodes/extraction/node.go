// Package extraction provides the model-backed extraction node executor.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/template"
	"github.com/dukex/flowgate/pkg/toolclient"
	json "github.com/goccy/go-json"
)

// DefaultMaxToolRounds bounds the tool call rounds of one node execution.
const DefaultMaxToolRounds = 5

// ExtractionExecutor runs extraction nodes.
type ExtractionExecutor struct {
	models   llm.Models
	resolver *llm.Resolver
	tools    toolclient.Invoker
	logger   *slog.Logger
	now      func() time.Time
}

// NewExtractionExecutor creates a new extraction executor. tools may be nil when
// no node binds remote tools.
func NewExtractionExecutor(models llm.Models, resolver *llm.Resolver, tools toolclient.Invoker, logger *slog.Logger) *ExtractionExecutor {
	if logger == nil {
		logger = slog.Default()
	}

	return &ExtractionExecutor{
		models:   models,
		resolver: resolver,
		tools:    tools,
		logger:   logger,
		now:      time.Now,
	}
}

type userPrompt struct {
	Input      any `json:"input"`
	LastOutput any `json:"lastOutput"`
}

// Execute resolves the model, runs the tool loop and validates the final answer.
func (e *ExtractionExecutor) Execute(ctx context.Context, request protocol.Request) (*protocol.Result, error) {
	data, ok := request.Node.Data.(*models.ExtractionData)
	if !ok {
		return nil, protocol.UnexpectedData(request.Node, models.NodeKindExtraction)
	}

	logger := request.Logger(e.logger)
	model := e.resolveModel(ctx, logger, data.Model)
	logger = logger.With("model", model.String())

	if request.Credentials == nil {
		return nil, fmt.Errorf("%w: no credential source for provider %s", llm.ErrConfig, model.Provider)
	}

	credentials, err := request.Credentials.Credentials(ctx, model.Provider)
	if err != nil {
		if !errors.Is(err, llm.ErrConfig) {
			err = fmt.Errorf("%w: %w", llm.ErrConfig, err)
		}

		return nil, err
	}

	bindings, err := e.bindings(data.Tools)
	if err != nil {
		return nil, err
	}

	instructions, err := template.RenderStringWithState(data.Instructions, request.Scope())
	if err != nil {
		return nil, fmt.Errorf("failed to render instructions: %w", err)
	}

	system, err := systemPrompt(instructions, data.OutputSchema)
	if err != nil {
		return nil, err
	}

	user, err := json.Marshal(userPrompt{
		Input:      request.State.Variables[models.VariableInput],
		LastOutput: request.State.Variables[models.VariableLastOutput],
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode user prompt: %w", err)
	}

	loop := &toolLoop{
		executor:    e,
		logger:      logger,
		scope:       request.Scope(),
		bindings:    bindings,
		maxRounds:   data.MaxToolRounds,
		definitions: definitions(data.Tools),
	}

	if loop.maxRounds <= 0 {
		loop.maxRounds = DefaultMaxToolRounds
	}

	llmRequest := llm.Request{
		Model:       model,
		Credentials: credentials,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: string(user)},
		},
	}

	if len(data.OutputSchema) > 0 {
		llmRequest.ResponseSchema = &llm.ResponseSchema{
			Name:   "extraction",
			Schema: data.OutputSchema,
		}
	}

	answer, err := loop.run(ctx, llmRequest)
	if err != nil {
		return nil, err
	}

	output, err := parseOutput(answer, data.OutputSchema)
	if err != nil {
		logger.WarnContext(ctx, "extraction output rejected", "error", err)

		return nil, err
	}

	logger.InfoContext(ctx, "extraction completed",
		"tokens_used", loop.tokensUsed,
		"tools_used", len(loop.toolsUsed),
	)

	at := e.now().UTC()

	return &protocol.Result{
		Variables: map[string]any{
			models.VariableLastOutput: output,
		},
		Output: output,
		Messages: []models.ChatMessage{
			{Role: models.ChatRoleUser, Content: string(user), NodeID: request.Node.ID, Timestamp: at},
			{Role: models.ChatRoleAssistant, Content: answer, NodeID: request.Node.ID, Timestamp: at},
		},
		TokensUsed: loop.tokensUsed,
		ToolsUsed:  loop.toolsUsed,
	}, nil
}

// resolveModel substitutes the provider default for models missing from the capability table.
func (e *ExtractionExecutor) resolveModel(ctx context.Context, logger *slog.Logger, model string) llm.Resolution {
	resolution := e.resolver.Resolve(model)

	validation := e.resolver.Validate(model)
	if validation.IsValid {
		return resolution
	}

	info, ok := e.resolver.Provider(resolution.Provider)
	if !ok {
		return resolution
	}

	logger.WarnContext(ctx, "unsupported model, using provider default",
		"requested", model,
		"substitute", info.DefaultModel,
		"reason", validation.Error,
	)

	resolution.ModelName = info.DefaultModel

	return resolution
}

func (e *ExtractionExecutor) bindings(tools []models.ToolBinding) (map[string]models.ToolBinding, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	if e.tools == nil {
		return nil, fmt.Errorf("%w: node binds tools but no tool client is configured", llm.ErrConfig)
	}

	bindings := make(map[string]models.ToolBinding, len(tools))

	for _, binding := range tools {
		if binding.Name == "" || binding.ServerURL == "" {
			return nil, fmt.Errorf("tool binding requires name and server_url, got %q at %q", binding.Name, binding.ServerURL)
		}

		if _, exists := bindings[binding.Name]; exists {
			return nil, fmt.Errorf("duplicate tool binding %q", binding.Name)
		}

		bindings[binding.Name] = binding
	}

	return bindings, nil
}

func definitions(tools []models.ToolBinding) []llm.ToolDefinition {
	var result []llm.ToolDefinition

	for _, binding := range tools {
		parameters := binding.InputSchema
		if parameters == nil {
			parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}

		result = append(result, llm.ToolDefinition{
			Name:        binding.Name,
			Description: binding.Description,
			Parameters:  parameters,
		})
	}

	return result
}
