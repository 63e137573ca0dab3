package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/template"
	"github.com/dukex/flowgate/pkg/toolclient"
)

const maxTimeoutSeconds = 300

// ToolExecutor performs a single tool invocation.
type ToolExecutor struct {
	tools  toolclient.Invoker
	logger *slog.Logger
}

// NewToolExecutor creates a new tool executor.
func NewToolExecutor(tools toolclient.Invoker, logger *slog.Logger) *ToolExecutor {
	if logger == nil {
		logger = slog.Default()
	}

	return &ToolExecutor{
		tools:  tools,
		logger: logger,
	}
}

// Execute renders the invocation and calls the tool. Tool failures fail the node.
func (e *ToolExecutor) Execute(ctx context.Context, request protocol.Request) (*protocol.Result, error) {
	data, ok := request.Node.Data.(*models.ToolData)
	if !ok {
		return nil, protocol.UnexpectedData(request.Node, models.NodeKindTool)
	}

	invocation, err := e.invocation(data, request.Scope())
	if err != nil {
		return nil, err
	}

	logger := request.Logger(e.logger).With("tool", invocation.Tool, "server_url", invocation.ServerURL)
	logger.DebugContext(ctx, "invoking tool")

	started := time.Now()

	output, err := e.tools.Invoke(ctx, invocation)
	if err != nil {
		logger.ErrorContext(ctx, "tool invocation failed", "error", err)

		return nil, err
	}

	logger.InfoContext(ctx, "tool invocation completed", "duration", time.Since(started))

	return &protocol.Result{
		Variables: map[string]any{
			models.VariableLastOutput: output,
		},
		Output:    output,
		ToolsUsed: []string{invocation.Tool},
	}, nil
}

func (e *ToolExecutor) invocation(data *models.ToolData, scope template.Scope) (toolclient.Invocation, error) {
	if data.Tool == "" {
		return toolclient.Invocation{}, errors.New("missing required field 'tool'")
	}

	if data.TimeoutSeconds < 0 || data.TimeoutSeconds > maxTimeoutSeconds {
		return toolclient.Invocation{}, fmt.Errorf("timeout must be between 1 and %d seconds", maxTimeoutSeconds)
	}

	serverURL, err := template.RenderStringWithState(data.ServerURL, scope)
	if err != nil {
		return toolclient.Invocation{}, fmt.Errorf("failed to render server url: %w", err)
	}

	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return toolclient.Invocation{}, errors.New("missing required field 'server_url'")
	}

	var params map[string]any

	if data.Arguments != nil {
		rendered, err := template.RenderValue(data.Arguments, scope)
		if err != nil {
			return toolclient.Invocation{}, fmt.Errorf("failed to render arguments: %w", err)
		}

		params, _ = rendered.(map[string]any)
	}

	token, err := template.RenderStringWithState(data.AuthCredential, scope)
	if err != nil {
		return toolclient.Invocation{}, fmt.Errorf("failed to render auth credential: %w", err)
	}

	return toolclient.Invocation{
		ServerURL: serverURL,
		Tool:      data.Tool,
		Params:    params,
		AuthToken: strings.TrimSpace(token),
		Timeout:   time.Duration(data.TimeoutSeconds) * time.Second,
	}, nil
}
