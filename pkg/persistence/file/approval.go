package file

import (
	"context"
	"errors"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
)

// ApprovalRepository handles approval-record file operations.
type ApprovalRepository struct {
	store *Persistence
}

func (ar *ApprovalRepository) Approval(_ context.Context, approvalID string) (*models.ApprovalRecord, error) {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	record, err := ar.load("Approval", approvalID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, persistence.NewApprovalError("Approval", approvalID, persistence.ErrApprovalNotFound)
	}

	return record, nil
}

func (ar *ApprovalRepository) UpsertApproval(_ context.Context, request *models.ApprovalRecord) (*models.ApprovalRecord, bool, error) {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	current, err := ar.load("UpsertApproval", request.ApprovalID)
	if err != nil {
		return nil, false, err
	}

	next, created, err := persistence.UpsertPending(current, request)
	if err != nil {
		return nil, false, err
	}

	err = ar.store.write(approvalsDir, next.ApprovalID, next)
	if err != nil {
		return nil, false, persistence.NewApprovalError("UpsertApproval", next.ApprovalID, err)
	}

	return next, created, nil
}

func (ar *ApprovalRepository) DecideApproval(_ context.Context, approvalID string, decision persistence.Decision) (*models.ApprovalRecord, error) {
	ar.store.mu.Lock()
	defer ar.store.mu.Unlock()

	current, err := ar.load("DecideApproval", approvalID)
	if err != nil {
		return nil, err
	}

	if current == nil {
		return nil, persistence.NewApprovalError("DecideApproval", approvalID, persistence.ErrApprovalNotFound)
	}

	decided, err := persistence.ApplyDecision(current, decision)
	if err != nil {
		return nil, err
	}

	err = ar.store.write(approvalsDir, approvalID, decided)
	if err != nil {
		return nil, persistence.NewApprovalError("DecideApproval", approvalID, err)
	}

	return decided, nil
}

// load returns nil without error when the record does not exist.
func (ar *ApprovalRepository) load(op, approvalID string) (*models.ApprovalRecord, error) {
	var record models.ApprovalRecord

	err := ar.store.read(approvalsDir, approvalID, &record)
	if errors.Is(err, errNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewApprovalError(op, approvalID, err)
	}

	return &record, nil
}
