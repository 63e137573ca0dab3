package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrRunBusy is returned when another Step or Resume holds the run.
	ErrRunBusy = errors.New("run busy")

	// ErrRunNotRunning is returned by Step for runs that are not in the running status.
	ErrRunNotRunning = errors.New("run not running")

	// ErrRunNotWaiting is returned by Resume for runs that are not waiting for approval.
	ErrRunNotWaiting = errors.New("run not waiting for approval")

	// ErrUnreachableBranch fails a run whose node has outgoing edges but none can be taken.
	ErrUnreachableBranch = errors.New("no outgoing edge can be taken")

	// ErrCycleDetected fails a run that would execute a node a second time.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrApprovalMismatch rejects a resume with an approval that is not the run's pause point.
	ErrApprovalMismatch = errors.New("approval does not match pause point")

	// ErrInvalidGraph rejects graphs that cannot be executed.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrNodePanicked reports an executor panic caught at the step boundary.
	ErrNodePanicked = errors.New("node executor panicked")
)

// RunError wraps machine errors with the operation and run.
type RunError struct {
	Op          string // Operation being performed (e.g., "Step", "Resume")
	ExecutionID string
	Err         error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s failed for run %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for run errors.
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

// IsRunBusy checks if an error reports concurrent access to a run.
func IsRunBusy(err error) bool {
	return errors.Is(err, ErrRunBusy)
}
