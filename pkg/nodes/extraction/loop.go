package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/template"
	"github.com/dukex/flowgate/pkg/toolclient"
	json "github.com/goccy/go-json"
)

// toolLoop alternates model completions and tool calls until the model answers.
type toolLoop struct {
	executor    *ExtractionExecutor
	logger      *slog.Logger
	scope       template.Scope
	bindings    map[string]models.ToolBinding
	definitions []llm.ToolDefinition
	maxRounds   int

	tokensUsed int
	toolsUsed  []string
}

func (l *toolLoop) run(ctx context.Context, request llm.Request) (string, error) {
	request.Tools = l.definitions

	for round := 0; ; round++ {
		response, err := l.executor.models.Complete(ctx, request)
		if err != nil {
			return "", providerError(err)
		}

		l.tokensUsed += response.TokensUsed

		if len(response.Message.ToolCalls) == 0 {
			return response.Message.Content, nil
		}

		if round >= l.maxRounds {
			return "", fmt.Errorf("%w: model requested more than %d tool rounds", llm.ErrProvider, l.maxRounds)
		}

		request.Messages = append(request.Messages, response.Message)

		for _, call := range response.Message.ToolCalls {
			content, err := l.call(ctx, call)
			if err != nil {
				return "", err
			}

			request.Messages = append(request.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}
}

// call routes one model tool call through the tool client and encodes its result for the model.
func (l *toolLoop) call(ctx context.Context, call llm.ToolCall) (string, error) {
	binding, ok := l.bindings[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: model called unknown tool %q", llm.ErrProvider, call.Name)
	}

	var arguments map[string]any

	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &arguments); err != nil {
			return "", fmt.Errorf("%w: invalid arguments for tool %q: %w", llm.ErrProvider, call.Name, err)
		}
	}

	token, err := template.RenderStringWithState(binding.AuthCredential, l.scope)
	if err != nil {
		return "", fmt.Errorf("failed to render credential for tool %q: %w", call.Name, err)
	}

	l.logger.DebugContext(ctx, "model requested tool call", "tool", call.Name, "call_id", call.ID)

	result, err := l.executor.tools.Invoke(ctx, toolclient.Invocation{
		ServerURL: binding.ServerURL,
		Tool:      binding.Name,
		Params:    arguments,
		AuthToken: strings.TrimSpace(token),
	})
	if err != nil {
		return "", fmt.Errorf("tool %q failed: %w", call.Name, err)
	}

	l.toolsUsed = append(l.toolsUsed, binding.Name)

	if text, ok := result.(string); ok {
		return text, nil
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result of tool %q: %w", call.Name, err)
	}

	return string(encoded), nil
}

func providerError(err error) error {
	if llm.IsProviderError(err) || llm.IsConfigError(err) {
		return err
	}

	return fmt.Errorf("%w: %w", llm.ErrProvider, err)
}
