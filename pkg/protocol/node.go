// Package protocol defines the contract between the state machine and node executors.
package protocol

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/template"
	"github.com/dukex/flowgate/pkg/toolclient"
)

// Executor runs one node kind.
type Executor interface {
	Execute(ctx context.Context, request Request) (*Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, request Request) (*Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, request Request) (*Result, error) {
	return f(ctx, request)
}

// Request is the input of one node execution. State is a snapshot owned by the
// executor; changes to it are discarded, only the returned Result is merged.
type Request struct {
	ExecutionID string
	WorkflowID  string
	Node        *models.Node
	State       models.ExecutionState
	Credentials llm.CredentialSource
}

// Scope returns the template scope of the request.
func (r Request) Scope() template.Scope {
	return template.Scope{
		ExecutionID: r.ExecutionID,
		WorkflowID:  r.WorkflowID,
		State:       r.State,
	}
}

// Logger returns logger annotated with the request ids.
func (r Request) Logger(logger *slog.Logger) *slog.Logger {
	return logger.With(
		"execution_id", r.ExecutionID,
		"workflow_id", r.WorkflowID,
		"node_id", r.Node.ID,
		"node_type", string(r.Node.Type),
	)
}

// UnexpectedData reports a node whose payload does not belong to the executor.
func UnexpectedData(node *models.Node, want models.NodeKind) error {
	return fmt.Errorf("node %s: expected %s data, got %T", node.ID, want, node.Data)
}

// Result is the outcome of a node execution.
type Result struct {
	// Variables are shallow-merged into the run variables.
	Variables map[string]any
	// Output becomes nodeResults[node.id].
	Output any
	// Messages are appended to the chat history.
	Messages   []models.ChatMessage
	TokensUsed int
	ToolsUsed  []string

	// Await suspends the run until the approval is decided. Variables, Output and
	// Messages are ignored when set.
	Await *ApprovalRequest
}

// ApprovalRequest asks the state machine to pause the run at the current node.
type ApprovalRequest struct {
	ApprovalID string
	Message    string
	UserID     string
}

// Resources are the shared dependencies executors are constructed with.
type Resources struct {
	Models   llm.Models
	Resolver *llm.Resolver
	Tools    toolclient.Invoker
	Logger   *slog.Logger
}

// ExecutorFactory builds the executor for one node kind.
type ExecutorFactory interface {
	// Kind returns the node kind this factory serves
	Kind() models.NodeKind

	// Name returns the human-readable name for this node kind
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema of the node data
	Schema() map[string]any

	// Create builds the executor from shared resources
	Create(resources Resources) (Executor, error)
}
