package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates no graph is stored under the given workflow id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates no run record exists for the given execution id.
	ErrRunNotFound = errors.New("run not found")

	// ErrApprovalNotFound indicates no approval record exists for the given id.
	ErrApprovalNotFound = errors.New("approval not found")

	// ErrApprovalDecided indicates the approval record is already approved or rejected.
	ErrApprovalDecided = errors.New("approval already decided")

	// ErrApprovalOwned indicates the approval id is held by another pause point.
	ErrApprovalOwned = errors.New("approval belongs to another pause point")

	// ErrInvalidID indicates an identifier that cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid identifier")
)

// WorkflowError wraps graph-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "LoadGraph", "SaveGraph")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// RunError wraps run-record errors with additional context.
type RunError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, executionID string, err error) *RunError {
	return &RunError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// ApprovalError wraps approval-record errors with additional context.
type ApprovalError struct {
	Op         string
	ApprovalID string
	Err        error
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("%s operation failed for approval %s: %v", e.Op, e.ApprovalID, e.Err)
}

func (e *ApprovalError) Unwrap() error {
	return e.Err
}

func (e *ApprovalError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewApprovalError creates a new approval error with context.
func NewApprovalError(op, approvalID string, err error) *ApprovalError {
	return &ApprovalError{
		Op:         op,
		ApprovalID: approvalID,
		Err:        err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsApprovalNotFound checks if an error indicates an approval record was not found.
func IsApprovalNotFound(err error) bool {
	return errors.Is(err, ErrApprovalNotFound)
}

// IsApprovalOwned checks if an error indicates the approval id belongs to another run or node.
func IsApprovalOwned(err error) bool {
	return errors.Is(err, ErrApprovalOwned)
}

// IsApprovalDecided checks if an error indicates the approval was already decided.
func IsApprovalDecided(err error) bool {
	return errors.Is(err, ErrApprovalDecided)
}
