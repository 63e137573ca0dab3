package services

import (
	"context"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/models"
)

// Approvals exposes the approval gate to hosts.
type Approvals struct {
	gate *approval.Gate
}

// NewApprovals creates a new approval service.
func NewApprovals(gate *approval.Gate) *Approvals {
	return &Approvals{gate: gate}
}

// Request creates or refreshes a pending approval.
func (a *Approvals) Request(ctx context.Context, req approval.Request) (*models.ApprovalRecord, error) {
	return a.gate.RequestApproval(ctx, req)
}

// Get returns the approval record in any status.
func (a *Approvals) Get(ctx context.Context, approvalID string) (*models.ApprovalRecord, error) {
	return a.gate.GetDecision(ctx, approvalID)
}

// ResumeData returns the decided approval record.
func (a *Approvals) ResumeData(ctx context.Context, approvalID string) (*models.ApprovalRecord, error) {
	return a.gate.GetResumeData(ctx, approvalID)
}
