// Package approval provides the approval node executor.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/template"
)

// ApprovalExecutor asks the state machine to suspend the run.
type ApprovalExecutor struct{}

// NewApprovalExecutor creates a new approval executor.
func NewApprovalExecutor() *ApprovalExecutor {
	return &ApprovalExecutor{}
}

// DefaultApprovalID identifies the pause point of a run when the node does not name one.
func DefaultApprovalID(executionID, nodeID string) string {
	return executionID + ":" + nodeID
}

// Execute renders the approval request.
func (e *ApprovalExecutor) Execute(_ context.Context, request protocol.Request) (*protocol.Result, error) {
	data, ok := request.Node.Data.(*models.ApprovalData)
	if !ok {
		return nil, protocol.UnexpectedData(request.Node, models.NodeKindApproval)
	}

	scope := request.Scope()

	message, err := template.RenderStringWithState(data.Message, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render approval message: %w", err)
	}

	if strings.TrimSpace(message) == "" {
		return nil, errors.New("approval message is empty")
	}

	approvalID := DefaultApprovalID(request.ExecutionID, request.Node.ID)

	if data.ApprovalID != "" {
		rendered, err := template.RenderStringWithState(data.ApprovalID, scope)
		if err != nil {
			return nil, fmt.Errorf("failed to render approval id: %w", err)
		}

		if rendered = strings.TrimSpace(rendered); rendered != "" {
			approvalID = rendered
		}
	}

	userID, err := template.RenderStringWithState(data.UserID, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to render approval user: %w", err)
	}

	return &protocol.Result{
		Await: &protocol.ApprovalRequest{
			ApprovalID: approvalID,
			Message:    message,
			UserID:     strings.TrimSpace(userID),
		},
	}, nil
}
