package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

// Runs exposes run lifecycle operations to hosts.
type Runs struct {
	machine  *workflow.Machine
	gate     *approval.Gate
	validate *validator.Validate
	logger   *slog.Logger
}

// NewRuns creates a new run service.
func NewRuns(machine *workflow.Machine, gate *approval.Gate, logger *slog.Logger) *Runs {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runs{
		machine:  machine,
		gate:     gate,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "run_service"),
	}
}

// StartRunRequest contains the input of a new run.
type StartRunRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	Input      any    `json:"input,omitempty"`

	// Advance steps the run synchronously until it leaves the running status.
	Advance bool `json:"advance,omitempty"`
}

// Start creates a run and returns its record.
func (r *Runs) Start(ctx context.Context, req StartRunRequest) (*models.RunRecord, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, NewValidationError("Start", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	executionID, err := r.machine.Start(ctx, req.WorkflowID, req.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	if req.Advance {
		if _, err := r.machine.Advance(ctx, executionID); err != nil {
			return nil, fmt.Errorf("failed to advance run %s: %w", executionID, err)
		}
	}

	return r.machine.Status(ctx, executionID)
}

// Step executes one node of the run.
func (r *Runs) Step(ctx context.Context, executionID string) (workflow.StepResult, error) {
	return r.machine.Step(ctx, executionID)
}

// Advance steps the run until it completes, fails or pauses.
func (r *Runs) Advance(ctx context.Context, executionID string) (workflow.StepResult, error) {
	return r.machine.Advance(ctx, executionID)
}

// Cancel stops the run.
func (r *Runs) Cancel(ctx context.Context, executionID string) (models.RunStatus, error) {
	return r.machine.Cancel(ctx, executionID)
}

// Get returns the run record.
func (r *Runs) Get(ctx context.Context, executionID string) (*models.RunRecord, error) {
	return r.machine.Status(ctx, executionID)
}

// DecideResult is the outcome of a decision and the resume it triggered.
type DecideResult struct {
	Approval  *models.ApprovalRecord `json:"approval"`
	RunStatus models.RunStatus       `json:"run_status"`
}

// Decide records a decision on an approval and resumes the run paused on it.
// The decision is durable even when the resume fails; the resume can be retried
// with Resume.
func (r *Runs) Decide(ctx context.Context, approvalID string, decision approval.Decision) (*DecideResult, error) {
	if _, err := r.gate.SubmitDecision(ctx, approvalID, decision); err != nil {
		return nil, err
	}

	return r.Resume(ctx, approvalID)
}

// Resume resumes the run paused on a decided approval.
func (r *Runs) Resume(ctx context.Context, approvalID string) (*DecideResult, error) {
	record, err := r.gate.GetResumeData(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	status, err := r.machine.Resume(ctx, record.ExecutionID, record)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to resume run after decision",
			"approval_id", approvalID,
			"execution_id", record.ExecutionID,
			"error", err,
		)

		return &DecideResult{Approval: record}, err
	}

	return &DecideResult{Approval: record, RunStatus: status}, nil
}
