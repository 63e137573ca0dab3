// Package approval implements the durable human approval checkpoint of a run.
package approval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/flowgate/pkg/eventbus"
	"github.com/dukex/flowgate/pkg/events"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
)

// Request identifies a pause point and what the approver is asked.
type Request struct {
	ApprovalID  string `json:"approval_id"  validate:"required"`
	ExecutionID string `json:"execution_id" validate:"required"`
	WorkflowID  string `json:"workflow_id"  validate:"required"`
	NodeID      string `json:"node_id"      validate:"required"`
	Message     string `json:"message"      validate:"required"`
	UserID      string `json:"user_id,omitempty"`
}

// Decision is a human verdict on a pending approval.
type Decision struct {
	Status    models.ApprovalStatus `json:"status"               validate:"required,oneof=approved rejected"`
	DecidedBy string                `json:"decided_by,omitempty"`
	Comment   string                `json:"comment,omitempty"`
}

// Gate creates, decides and reads approval records. Errors never leave a record
// half-written: merges and decisions are atomic in the repository.
type Gate struct {
	approvals persistence.ApprovalRepository
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewGate creates a gate. A nil publisher discards events.
func NewGate(approvals persistence.ApprovalRepository, publisher eventbus.EventPublisher, logger *slog.Logger) *Gate {
	if publisher == nil {
		publisher = eventbus.Discard
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		approvals: approvals,
		publisher: publisher,
		logger:    logger.With("module", "approval_gate"),
		now:       time.Now,
	}
}

// RequestApproval creates a pending record, or updates message and user of a pending
// record with the same id requested by the same execution and node. A decided record,
// or one owned by another pause point, is left unchanged and ErrInvalidTransition returned.
func (g *Gate) RequestApproval(ctx context.Context, request Request) (*models.ApprovalRecord, error) {
	const op = "RequestApproval"

	if err := persistence.ValidateID(request.ApprovalID); err != nil {
		return nil, newError(op, request.ApprovalID, ErrInvalidTransition, err)
	}

	now := g.now().UTC()

	record, created, err := g.approvals.UpsertApproval(ctx, &models.ApprovalRecord{
		ApprovalID:  request.ApprovalID,
		ExecutionID: request.ExecutionID,
		WorkflowID:  request.WorkflowID,
		NodeID:      request.NodeID,
		Message:     request.Message,
		UserID:      request.UserID,
		Status:      models.ApprovalStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if persistence.IsApprovalDecided(err) || persistence.IsApprovalOwned(err) {
			return nil, newError(op, request.ApprovalID, ErrInvalidTransition, err)
		}

		return nil, err
	}

	if created {
		g.logger.InfoContext(ctx, "approval requested",
			"approval_id", record.ApprovalID,
			"execution_id", record.ExecutionID,
			"node_id", record.NodeID,
		)

		g.publish(ctx, events.ApprovalRequested{
			BaseEvent:  events.NewBaseEvent(events.ApprovalRequestedEvent, record.WorkflowID, record.ExecutionID),
			ApprovalID: record.ApprovalID,
			NodeID:     record.NodeID,
			Message:    record.Message,
			UserID:     record.UserID,
		})
	}

	return record, nil
}

// GetDecision returns the record in any status.
func (g *Gate) GetDecision(ctx context.Context, approvalID string) (*models.ApprovalRecord, error) {
	record, err := g.approvals.Approval(ctx, approvalID)
	if err != nil {
		if persistence.IsApprovalNotFound(err) {
			return nil, newError("GetDecision", approvalID, ErrNotFound, err)
		}

		return nil, err
	}

	return record, nil
}

// SubmitDecision moves a pending record to approved or rejected. Deciding a decided
// or missing record fails with ErrInvalidTransition.
func (g *Gate) SubmitDecision(ctx context.Context, approvalID string, decision Decision) (*models.ApprovalRecord, error) {
	const op = "SubmitDecision"

	if !decision.Status.IsDecided() {
		return nil, newError(op, approvalID, ErrInvalidDecision, nil)
	}

	record, err := g.approvals.DecideApproval(ctx, approvalID, persistence.Decision{
		Status:    decision.Status,
		DecidedBy: strings.TrimSpace(decision.DecidedBy),
		Comment:   decision.Comment,
		At:        g.now().UTC(),
	})
	if err != nil {
		switch {
		case persistence.IsApprovalNotFound(err):
			return nil, newError(op, approvalID, ErrInvalidTransition, ErrNotFound)
		case persistence.IsApprovalDecided(err):
			return nil, newError(op, approvalID, ErrInvalidTransition, err)
		default:
			return nil, err
		}
	}

	g.logger.InfoContext(ctx, "approval decided",
		"approval_id", record.ApprovalID,
		"execution_id", record.ExecutionID,
		"status", record.Status,
		"decided_by", record.DecidedBy,
	)

	g.publish(ctx, events.ApprovalDecided{
		BaseEvent:  events.NewBaseEvent(events.ApprovalDecidedEvent, record.WorkflowID, record.ExecutionID),
		ApprovalID: record.ApprovalID,
		NodeID:     record.NodeID,
		Status:     record.Status,
		DecidedBy:  record.DecidedBy,
		Comment:    record.Comment,
	})

	return record, nil
}

// GetResumeData returns a decided record for resuming its run.
func (g *Gate) GetResumeData(ctx context.Context, approvalID string) (*models.ApprovalRecord, error) {
	const op = "GetResumeData"

	record, err := g.approvals.Approval(ctx, approvalID)
	if err != nil {
		if persistence.IsApprovalNotFound(err) {
			return nil, newError(op, approvalID, ErrNotFound, err)
		}

		return nil, err
	}

	if record.Status == models.ApprovalStatusPending {
		return nil, newError(op, approvalID, ErrPending, nil)
	}

	return record, nil
}

func (g *Gate) publish(ctx context.Context, event eventbus.Event) {
	key := ""
	if keyed, ok := event.(interface{ Key() string }); ok {
		key = keyed.Key()
	}

	if err := g.publisher.Publish(ctx, key, event); err != nil {
		g.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
