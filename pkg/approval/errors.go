package approval

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition rejects mutation of a decided record or a decision on a missing one.
	ErrInvalidTransition = errors.New("invalid approval transition")

	// ErrPending indicates the approval exists but has not been decided yet.
	ErrPending = errors.New("approval pending")

	// ErrNotFound indicates no approval exists under the given id.
	ErrNotFound = errors.New("approval not found")

	// ErrInvalidDecision rejects decisions other than approved or rejected.
	ErrInvalidDecision = errors.New("invalid approval decision")
)

// Error wraps gate failures with the operation and approval id.
type Error struct {
	Op         string
	ApprovalID string
	Err        error // one of the package sentinels
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed for approval %s: %v: %v", e.Op, e.ApprovalID, e.Err, e.Cause)
	}

	return fmt.Sprintf("%s failed for approval %s: %v", e.Op, e.ApprovalID, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}

	return []error{e.Err, e.Cause}
}

func newError(op, approvalID string, err, cause error) *Error {
	return &Error{
		Op:         op,
		ApprovalID: approvalID,
		Err:        err,
		Cause:      cause,
	}
}

// IsInvalidTransition checks if an error rejected an approval mutation.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsPending checks if an error reports an undecided approval.
func IsPending(err error) bool {
	return errors.Is(err, ErrPending)
}

// IsNotFound checks if an error reports a missing approval.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
