package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallCompletion = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "claude-3-5-haiku-latest",
	"choices": [{
		"index": 0,
		"finish_reason": "tool_calls",
		"message": {
			"role": "assistant",
			"content": null,
			"tool_calls": [{
				"id": "call_1",
				"type": "function",
				"function": {"name": "lookup_customer", "arguments": "{\"email\":\"a@example.com\"}"}
			}]
		}
	}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
}`

func TestOpenAIModels_Complete(t *testing.T) {
	var (
		received      map[string]any
		authorization string
		path          string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		authorization = r.Header.Get("Authorization")

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(body, &received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(toolCallCompletion))
	}))
	defer server.Close()

	models := NewOpenAIModels(NewResolver(), WithModelsHTTPClient(server.Client()))

	response, err := models.Complete(context.Background(), Request{
		Model:       Resolution{Provider: ProviderAnthropic, ModelName: "claude-3-5-haiku-latest"},
		Credentials: Credentials{APIKey: "sk-test", BaseURL: server.URL + "/v1/"},
		Messages: []Message{
			{Role: RoleSystem, Content: "Extract the customer"},
			{Role: RoleUser, Content: `{"input":"hi"}`},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Name: "ping", Arguments: "{}"}}},
			{Role: RoleTool, ToolCallID: "call_0", Content: `"pong"`},
		},
		Tools: []ToolDefinition{{
			Name:        "lookup_customer",
			Description: "Finds a customer",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"email": map[string]any{"type": "string"}}},
		}},
		ResponseSchema: &ResponseSchema{Name: "customer", Schema: map[string]any{"type": "object"}},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(path, "/chat/completions"))
	assert.Equal(t, "Bearer sk-test", authorization)
	assert.Equal(t, "claude-3-5-haiku-latest", received["model"])

	messages, ok := received["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "tool", messages[3].(map[string]any)["role"])
	assert.Equal(t, "call_0", messages[3].(map[string]any)["tool_call_id"])

	tools, ok := received["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)

	format, ok := received["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])

	assert.Equal(t, RoleAssistant, response.Message.Role)
	require.Len(t, response.Message.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "lookup_customer", Arguments: `{"email":"a@example.com"}`}, response.Message.ToolCalls[0])
	assert.Equal(t, 20, response.TokensUsed)
}

func TestOpenAIModels_UpstreamFailureIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	models := NewOpenAIModels(NewResolver(), WithModelsHTTPClient(server.Client()))

	_, err := models.Complete(context.Background(), Request{
		Model:       Resolution{Provider: ProviderOpenAI, ModelName: "gpt-4o-mini"},
		Credentials: Credentials{APIKey: "sk-test", BaseURL: server.URL + "/v1/"},
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.Contains(t, err.Error(), "500")
}

func TestOpenAIModels_MissingKeyIsConfigError(t *testing.T) {
	models := NewOpenAIModels(NewResolver())

	_, err := models.Complete(context.Background(), Request{
		Model:    Resolution{Provider: ProviderOpenAI, ModelName: "gpt-4o-mini"},
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	assert.True(t, IsConfigError(err))
}

func TestNewOpenAIModels_BoundsModelCalls(t *testing.T) {
	models := NewOpenAIModels(NewResolver())
	assert.Equal(t, DefaultModelTimeout, models.httpClient.Timeout)

	custom := &http.Client{Timeout: time.Second}
	assert.Same(t, custom, NewOpenAIModels(NewResolver(), WithModelsHTTPClient(custom)).httpClient)
}
