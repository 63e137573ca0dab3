// Package persistence provides the storage abstraction for graphs, runs and approval records.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowgate/pkg/models"
)

// Persistence aggregates the repositories used by the execution core.
type Persistence interface {
	GraphRepository() GraphRepository
	RunRepository() RunRepository
	ApprovalRepository() ApprovalRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// GraphRepository stores workflow graphs. The core only reads them.
type GraphRepository interface {
	LoadGraph(ctx context.Context, workflowID string) (*models.Graph, error)
	SaveGraph(ctx context.Context, graph *models.Graph) error
}

// RunRepository stores run records.
type RunRepository interface {
	SaveRunRecord(ctx context.Context, record *models.RunRecord) error
	RunRecord(ctx context.Context, executionID string) (*models.RunRecord, error)

	// PatchRunRecord atomically applies patch to the stored record and returns the result.
	PatchRunRecord(ctx context.Context, executionID string, patch models.RunPatch) (*models.RunRecord, error)
}

// ApprovalRepository stores approval records.
type ApprovalRepository interface {
	Approval(ctx context.Context, approvalID string) (*models.ApprovalRecord, error)

	// UpsertApproval creates a pending record or, when a pending record already exists
	// under the same id, replaces only its message and user id. It reports whether the
	// record was created and fails with ErrApprovalDecided when the stored record is final.
	UpsertApproval(ctx context.Context, record *models.ApprovalRecord) (*models.ApprovalRecord, bool, error)

	// DecideApproval moves a pending record to status in one atomic step.
	DecideApproval(ctx context.Context, approvalID string, decision Decision) (*models.ApprovalRecord, error)
}

// Decision is the payload of a pending to decided transition.
type Decision struct {
	Status    models.ApprovalStatus
	DecidedBy string
	Comment   string
	At        time.Time
}

// UpsertPending applies the pending-preserving merge to current (nil when absent).
// Only a request from the same execution and node merges. Every implementation runs
// it inside its own atomic section.
func UpsertPending(current, request *models.ApprovalRecord) (*models.ApprovalRecord, bool, error) {
	if current == nil {
		created := *request
		created.Status = models.ApprovalStatusPending

		if created.CreatedAt.IsZero() {
			created.CreatedAt = request.UpdatedAt
		}

		return &created, true, nil
	}

	if current.Status.IsDecided() {
		return current, false, NewApprovalError("UpsertApproval", request.ApprovalID, ErrApprovalDecided)
	}

	if !current.SamePausePoint(request) {
		return current, false, NewApprovalError("UpsertApproval", request.ApprovalID, ErrApprovalOwned)
	}

	merged := *current
	merged.MergePending(request, request.UpdatedAt)

	return &merged, false, nil
}

// ApplyDecision applies decision to current, refusing records that are already final.
func ApplyDecision(current *models.ApprovalRecord, decision Decision) (*models.ApprovalRecord, error) {
	if current.Status.IsDecided() {
		return current, NewApprovalError("DecideApproval", current.ApprovalID, ErrApprovalDecided)
	}

	decided := *current
	decided.Decide(decision.Status, decision.DecidedBy, decision.Comment, decision.At)

	return &decided, nil
}
