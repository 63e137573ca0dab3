package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultModelTimeout bounds one model call, including the response body.
const DefaultModelTimeout = 2 * time.Minute

// OpenAIModels talks to every provider through its OpenAI-compatible endpoint.
type OpenAIModels struct {
	resolver   *Resolver
	httpClient *http.Client
	logger     *slog.Logger
}

// OpenAIOption configures OpenAIModels.
type OpenAIOption func(*OpenAIModels)

// WithModelsHTTPClient sets the HTTP client used for model calls.
func WithModelsHTTPClient(client *http.Client) OpenAIOption {
	return func(m *OpenAIModels) {
		m.httpClient = client
	}
}

// WithModelsLogger sets the logger.
func WithModelsLogger(logger *slog.Logger) OpenAIOption {
	return func(m *OpenAIModels) {
		m.logger = logger
	}
}

// NewOpenAIModels creates a Models backed by openai-go.
func NewOpenAIModels(resolver *Resolver, opts ...OpenAIOption) *OpenAIModels {
	m := &OpenAIModels{
		resolver:   resolver,
		httpClient: &http.Client{Timeout: DefaultModelTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *OpenAIModels) client(request Request) (openai.Client, error) {
	baseURL := request.Credentials.BaseURL
	if baseURL == "" {
		info, ok := m.resolver.Provider(request.Model.Provider)
		if !ok {
			return openai.Client{}, fmt.Errorf("%w: unknown provider %s", ErrConfig, request.Model.Provider)
		}

		baseURL = info.BaseURL
	}

	if request.Credentials.APIKey == "" {
		return openai.Client{}, fmt.Errorf("%w: no credentials for provider %s", ErrConfig, request.Model.Provider)
	}

	return openai.NewClient(
		option.WithAPIKey(request.Credentials.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(m.httpClient),
		option.WithMaxRetries(0),
	), nil
}

// Complete sends one non-streaming chat completion.
func (m *OpenAIModels) Complete(ctx context.Context, request Request) (*Response, error) {
	client, err := m.client(request)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(request.Model.ModelName),
		Messages: convertMessages(request.Messages),
		Tools:    convertTools(request.Tools),
	}

	if request.ResponseSchema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   request.ResponseSchema.Name,
					Schema: request.ResponseSchema.Schema,
					Strict: openai.Bool(false),
				},
			},
		}
	}

	m.logger.DebugContext(ctx, "requesting chat completion",
		"provider", request.Model.Provider,
		"model", request.Model.ModelName,
		"messages", len(request.Messages),
		"tools", len(request.Tools),
	)

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s returned status %d: %w", ErrProvider, request.Model.Provider, apiErr.StatusCode, err)
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrProvider, request.Model.Provider, err)
	}

	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", ErrProvider, request.Model.Provider)
	}

	choice := completion.Choices[0].Message

	message := Message{
		Role:    RoleAssistant,
		Content: choice.Content,
	}

	for i, call := range choice.ToolCalls {
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}

		message.ToolCalls = append(message.ToolCalls, ToolCall{
			ID:        id,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}

	return &Response{
		Message:    message,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		case RoleAssistant:
			assistant := &openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(msg.Content),
				}
			}

			for _, call := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}

			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: assistant})
		case RoleTool:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
					ToolCallID: msg.ToolCallID,
				},
			})
		default:
			result = append(result, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		}
	}

	return result
}

func convertTools(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolParam, 0, len(tools))

	for _, tool := range tools {
		parameters := shared.FunctionParameters(tool.Parameters)
		if parameters == nil {
			parameters = shared.FunctionParameters{"type": "object", "properties": map[string]any{}}
		}

		definition := openai.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: parameters,
		}

		if tool.Description != "" {
			definition.Description = openai.String(tool.Description)
		}

		result = append(result, openai.ChatCompletionToolParam{Function: definition})
	}

	return result
}
