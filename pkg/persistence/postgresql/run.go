package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
	json "github.com/goccy/go-json"
)

// RunRepository handles run-record database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `execution_id, workflow_id, status, current_node_id, approval_id, cancel_requested,
	started_at, updated_at, completed_at, error_message, state`

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SaveRunRecord inserts or replaces a run record.
func (rr *RunRepository) SaveRunRecord(ctx context.Context, record *models.RunRecord) error {
	err := upsertRun(ctx, rr.db, record)
	if err != nil {
		rr.logger.ErrorContext(ctx, "Failed to save run record", "execution_id", record.ExecutionID, "error", err)

		return persistence.NewRunError("SaveRunRecord", record.ExecutionID, err)
	}

	return nil
}

// RunRecord returns the run record for executionID.
func (rr *RunRepository) RunRecord(ctx context.Context, executionID string) (*models.RunRecord, error) {
	record, err := selectRun(ctx, rr.db, executionID, false)
	if err != nil {
		return nil, runError("RunRecord", executionID, err)
	}

	return record, nil
}

// PatchRunRecord locks the row, applies patch and writes it back in one transaction.
func (rr *RunRepository) PatchRunRecord(ctx context.Context, executionID string, patch models.RunPatch) (*models.RunRecord, error) {
	transaction, err := rr.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewRunError("PatchRunRecord", executionID, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() { _ = transaction.Rollback() }()

	record, err := selectRun(ctx, transaction, executionID, true)
	if err != nil {
		return nil, runError("PatchRunRecord", executionID, err)
	}

	record.Apply(patch)

	err = upsertRun(ctx, transaction, record)
	if err != nil {
		return nil, persistence.NewRunError("PatchRunRecord", executionID, err)
	}

	err = transaction.Commit()
	if err != nil {
		return nil, persistence.NewRunError("PatchRunRecord", executionID, fmt.Errorf("failed to commit: %w", err))
	}

	return record, nil
}

func upsertRun(ctx context.Context, q querier, record *models.RunRecord) error {
	state, err := json.Marshal(record.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (execution_id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			approval_id = EXCLUDED.approval_id,
			cancel_requested = EXCLUDED.cancel_requested,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			error_message = EXCLUDED.error_message,
			state = EXCLUDED.state
	`

	_, err = q.ExecContext(ctx, query,
		record.ExecutionID,
		record.WorkflowID,
		string(record.Status),
		record.CurrentNodeID,
		record.ApprovalID,
		record.CancelRequested,
		record.StartedAt,
		record.UpdatedAt,
		record.CompletedAt,
		record.Error,
		state,
	)

	return err
}

func selectRun(ctx context.Context, q querier, executionID string, forUpdate bool) (*models.RunRecord, error) {
	query := "SELECT " + runColumns + " FROM runs WHERE execution_id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		record      models.RunRecord
		status      string
		completedAt sql.NullTime
		state       []byte
	)

	err := q.QueryRowContext(ctx, query, executionID).Scan(
		&record.ExecutionID,
		&record.WorkflowID,
		&status,
		&record.CurrentNodeID,
		&record.ApprovalID,
		&record.CancelRequested,
		&record.StartedAt,
		&record.UpdatedAt,
		&completedAt,
		&record.Error,
		&state,
	)
	if err != nil {
		return nil, err
	}

	record.Status = models.RunStatus(status)

	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}

	err = json.Unmarshal(state, &record.State)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	return &record, nil
}

func runError(op, executionID string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewRunError(op, executionID, persistence.ErrRunNotFound)
	}

	return persistence.NewRunError(op, executionID, err)
}
