package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
)

// ApprovalRepository handles approval-record database operations.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

const approvalColumns = `approval_id, execution_id, workflow_id, node_id, message, user_id, status,
	decided_by, comment, created_at, updated_at, decided_at`

// Approval returns the approval record for approvalID.
func (ar *ApprovalRepository) Approval(ctx context.Context, approvalID string) (*models.ApprovalRecord, error) {
	row := ar.db.QueryRowContext(ctx, "SELECT "+approvalColumns+" FROM approvals WHERE approval_id = $1", approvalID)

	record, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewApprovalError("Approval", approvalID, persistence.ErrApprovalNotFound)
	}

	if err != nil {
		return nil, persistence.NewApprovalError("Approval", approvalID, err)
	}

	return record, nil
}

// UpsertApproval inserts a pending record or merges message and user into a pending one.
// The conflict clause only fires for pending rows of the same pause point, so any other
// existing row yields no result.
func (ar *ApprovalRepository) UpsertApproval(ctx context.Context, request *models.ApprovalRecord) (*models.ApprovalRecord, bool, error) {
	createdAt := request.CreatedAt
	if createdAt.IsZero() {
		createdAt = request.UpdatedAt
	}

	query := `
		INSERT INTO approvals (approval_id, execution_id, workflow_id, node_id, message, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8)
		ON CONFLICT (approval_id) DO UPDATE SET
			message = EXCLUDED.message,
			user_id = EXCLUDED.user_id,
			updated_at = EXCLUDED.updated_at
		WHERE approvals.status = 'pending'
			AND approvals.execution_id = EXCLUDED.execution_id
			AND approvals.node_id = EXCLUDED.node_id
		RETURNING ` + approvalColumns + `, (xmax = 0) AS inserted`

	row := ar.db.QueryRowContext(ctx, query,
		request.ApprovalID,
		request.ExecutionID,
		request.WorkflowID,
		request.NodeID,
		request.Message,
		request.UserID,
		createdAt,
		request.UpdatedAt,
	)

	var inserted bool

	record, err := scanApproval(row, &inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ar.upsertConflict(ctx, request.ApprovalID)
	}

	if err != nil {
		ar.logger.ErrorContext(ctx, "Failed to upsert approval", "approval_id", request.ApprovalID, "error", err)

		return nil, false, persistence.NewApprovalError("UpsertApproval", request.ApprovalID, err)
	}

	return record, inserted, nil
}

// upsertConflict explains why an upsert touched no row.
func (ar *ApprovalRepository) upsertConflict(ctx context.Context, approvalID string) error {
	current, err := ar.Approval(ctx, approvalID)
	if err != nil {
		return persistence.NewApprovalError("UpsertApproval", approvalID, err)
	}

	if current.Status.IsDecided() {
		return persistence.NewApprovalError("UpsertApproval", approvalID, persistence.ErrApprovalDecided)
	}

	return persistence.NewApprovalError("UpsertApproval", approvalID, persistence.ErrApprovalOwned)
}

// DecideApproval moves a pending row to its final status.
func (ar *ApprovalRepository) DecideApproval(ctx context.Context, approvalID string, decision persistence.Decision) (*models.ApprovalRecord, error) {
	query := `
		UPDATE approvals SET
			status = $2,
			decided_by = $3,
			comment = $4,
			updated_at = $5,
			decided_at = $5
		WHERE approval_id = $1 AND status = 'pending'
		RETURNING ` + approvalColumns

	row := ar.db.QueryRowContext(ctx, query, approvalID, string(decision.Status), decision.DecidedBy, decision.Comment, decision.At)

	record, err := scanApproval(row)
	if err == nil {
		return record, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewApprovalError("DecideApproval", approvalID, err)
	}

	// No pending row: tell apart a missing record from a decided one.
	_, err = ar.Approval(ctx, approvalID)
	if err != nil {
		return nil, persistence.NewApprovalError("DecideApproval", approvalID, err)
	}

	return nil, persistence.NewApprovalError("DecideApproval", approvalID, persistence.ErrApprovalDecided)
}

func scanApproval(row *sql.Row, extra ...any) (*models.ApprovalRecord, error) {
	var (
		record    models.ApprovalRecord
		status    string
		decidedAt sql.NullTime
	)

	dest := []any{
		&record.ApprovalID,
		&record.ExecutionID,
		&record.WorkflowID,
		&record.NodeID,
		&record.Message,
		&record.UserID,
		&status,
		&record.DecidedBy,
		&record.Comment,
		&record.CreatedAt,
		&record.UpdatedAt,
		&decidedAt,
	}

	err := row.Scan(append(dest, extra...)...)
	if err != nil {
		return nil, err
	}

	record.Status = models.ApprovalStatus(status)

	if decidedAt.Valid {
		record.DecidedAt = &decidedAt.Time
	}

	return &record, nil
}
