// Package services provides the host-facing operations over the execution core.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/persistence"
	"github.com/dukex/flowgate/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrGraphNil       = errors.New("graph cannot be nil")
	ErrGraphIDChanged = errors.New("graph id does not match the request path")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrGraphNil) ||
		errors.Is(err, ErrGraphIDChanged) ||
		errors.Is(err, workflow.ErrInvalidGraph) ||
		errors.Is(err, approval.ErrInvalidDecision) ||
		errors.Is(err, persistence.ErrInvalidID)
}

// IsNotFoundError checks if an error names a missing graph, run or approval (HTTP 404).
func IsNotFoundError(err error) bool {
	return persistence.IsWorkflowNotFound(err) ||
		persistence.IsRunNotFound(err) ||
		persistence.IsApprovalNotFound(err) ||
		errors.Is(err, approval.ErrNotFound)
}

// IsConflictError checks if an error is a state conflict that should return HTTP 409.
// A decision on a missing approval is a conflict, not a lookup miss.
func IsConflictError(err error) bool {
	return errors.Is(err, workflow.ErrRunBusy) ||
		errors.Is(err, workflow.ErrRunNotRunning) ||
		errors.Is(err, workflow.ErrRunNotWaiting) ||
		errors.Is(err, workflow.ErrApprovalMismatch) ||
		errors.Is(err, approval.ErrInvalidTransition) ||
		errors.Is(err, approval.ErrPending)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
