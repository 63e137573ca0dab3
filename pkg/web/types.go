// Package web provides HTTP request and response types for the run API.
package web

import (
	"github.com/dukex/flowgate/pkg/models"
)

// StartRunRequest represents the request body for starting a run.
type StartRunRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	Input      any    `json:"input,omitempty"`
	Advance    bool   `json:"advance,omitempty"`
}

// RequestApprovalRequest represents the request body for opening an approval outside a run step.
type RequestApprovalRequest struct {
	ApprovalID  string `json:"approval_id"  validate:"required"`
	ExecutionID string `json:"execution_id" validate:"required"`
	WorkflowID  string `json:"workflow_id"  validate:"required"`
	NodeID      string `json:"node_id"      validate:"required"`
	Message     string `json:"message"      validate:"required"`
	UserID      string `json:"user_id,omitempty"`
}

// DecisionRequest represents the request body of an approval decision.
type DecisionRequest struct {
	Status    models.ApprovalStatus `json:"status"               validate:"required,oneof=approved rejected"`
	DecidedBy string                `json:"decided_by,omitempty"`
	Comment   string                `json:"comment,omitempty"`
}

// RunResponse is the public view of a run record.
type RunResponse struct {
	ExecutionID   string                `json:"execution_id"`
	WorkflowID    string                `json:"workflow_id"`
	Status        models.RunStatus      `json:"status"`
	CurrentNodeID string                `json:"current_node_id,omitempty"`
	ApprovalID    string                `json:"approval_id,omitempty"`
	Error         string                `json:"error,omitempty"`
	State         models.ExecutionState `json:"state"`
	StartedAt     string                `json:"started_at"`
	CompletedAt   string                `json:"completed_at,omitempty"`
}

// TransformRunResponse converts a run record into its public view.
func TransformRunResponse(run *models.RunRecord) RunResponse {
	response := RunResponse{
		ExecutionID: run.ExecutionID,
		WorkflowID:  run.WorkflowID,
		Status:      run.Status,
		ApprovalID:  run.ApprovalID,
		Error:       run.Error,
		State:       run.State,
		StartedAt:   run.StartedAt.UTC().Format(timeFormat),
	}

	// The cursor is meaningless once the run is over.
	if !run.Status.IsTerminal() {
		response.CurrentNodeID = run.CurrentNodeID
	}

	if run.CompletedAt != nil {
		response.CompletedAt = run.CompletedAt.UTC().Format(timeFormat)
	}

	return response
}
