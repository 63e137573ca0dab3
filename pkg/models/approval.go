package models

import "time"

// ApprovalStatus is the decision state of an approval record.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// IsDecided reports whether the status is final.
func (s ApprovalStatus) IsDecided() bool {
	return s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// ApprovalRecord is the durable checkpoint of one pause point.
type ApprovalRecord struct {
	ApprovalID  string         `json:"approval_id"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	NodeID      string         `json:"node_id"`
	Message     string         `json:"message"`
	UserID      string         `json:"user_id,omitempty"`
	Status      ApprovalStatus `json:"status"`
	DecidedBy   string         `json:"decided_by,omitempty"`
	Comment     string         `json:"comment,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

// SamePausePoint reports whether other was requested by the same run and node.
func (a *ApprovalRecord) SamePausePoint(other *ApprovalRecord) bool {
	return a.ExecutionID == other.ExecutionID && a.NodeID == other.NodeID
}

// MergePending applies a repeated request for the same pause point.
// Only message and user change; status and identity never do.
func (a *ApprovalRecord) MergePending(request *ApprovalRecord, at time.Time) {
	a.Message = request.Message
	a.UserID = request.UserID
	a.UpdatedAt = at
}

// Decide records a final decision on a pending record.
func (a *ApprovalRecord) Decide(status ApprovalStatus, decidedBy, comment string, at time.Time) {
	a.Status = status
	a.DecidedBy = decidedBy
	a.Comment = comment
	a.UpdatedAt = at
	a.DecidedAt = &at
}
