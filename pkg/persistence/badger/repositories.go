package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v3"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
)

// GraphRepository stores graphs under graph/<workflowID>.
type GraphRepository struct {
	store *Persistence
}

func (gr *GraphRepository) LoadGraph(_ context.Context, workflowID string) (*models.Graph, error) {
	var graph models.Graph

	err := gr.store.db.View(func(txn *badger.Txn) error {
		return get(txn, graphPrefix+workflowID, &graph)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, persistence.NewWorkflowError("LoadGraph", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("LoadGraph", workflowID, err)
	}

	return &graph, nil
}

func (gr *GraphRepository) SaveGraph(ctx context.Context, graph *models.Graph) error {
	err := gr.store.update(ctx, func(txn *badger.Txn) error {
		return set(txn, graphPrefix+graph.ID, graph)
	})
	if err != nil {
		return persistence.NewWorkflowError("SaveGraph", graph.ID, err)
	}

	return nil
}

// RunRepository stores run records under run/<executionID>.
type RunRepository struct {
	store *Persistence
}

func (rr *RunRepository) SaveRunRecord(ctx context.Context, record *models.RunRecord) error {
	err := rr.store.update(ctx, func(txn *badger.Txn) error {
		return set(txn, runPrefix+record.ExecutionID, record)
	})
	if err != nil {
		return persistence.NewRunError("SaveRunRecord", record.ExecutionID, err)
	}

	return nil
}

func (rr *RunRepository) RunRecord(_ context.Context, executionID string) (*models.RunRecord, error) {
	var record models.RunRecord

	err := rr.store.db.View(func(txn *badger.Txn) error {
		return get(txn, runPrefix+executionID, &record)
	})
	if err != nil {
		return nil, runError("RunRecord", executionID, err)
	}

	return &record, nil
}

func (rr *RunRepository) PatchRunRecord(ctx context.Context, executionID string, patch models.RunPatch) (*models.RunRecord, error) {
	var record models.RunRecord

	err := rr.store.update(ctx, func(txn *badger.Txn) error {
		record = models.RunRecord{}

		if err := get(txn, runPrefix+executionID, &record); err != nil {
			return err
		}

		record.Apply(patch)

		return set(txn, runPrefix+executionID, &record)
	})
	if err != nil {
		return nil, runError("PatchRunRecord", executionID, err)
	}

	return &record, nil
}

func runError(op, executionID string, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return persistence.NewRunError(op, executionID, persistence.ErrRunNotFound)
	}

	return persistence.NewRunError(op, executionID, err)
}

// ApprovalRepository stores approval records under approval/<approvalID>.
type ApprovalRepository struct {
	store *Persistence
}

func (ar *ApprovalRepository) Approval(_ context.Context, approvalID string) (*models.ApprovalRecord, error) {
	var record models.ApprovalRecord

	err := ar.store.db.View(func(txn *badger.Txn) error {
		return get(txn, approvalPrefix+approvalID, &record)
	})
	if err != nil {
		return nil, approvalError("Approval", approvalID, err)
	}

	return &record, nil
}

func (ar *ApprovalRepository) UpsertApproval(ctx context.Context, request *models.ApprovalRecord) (*models.ApprovalRecord, bool, error) {
	var (
		next    *models.ApprovalRecord
		created bool
	)

	err := ar.store.update(ctx, func(txn *badger.Txn) error {
		var current *models.ApprovalRecord

		var stored models.ApprovalRecord

		err := get(txn, approvalPrefix+request.ApprovalID, &stored)

		switch {
		case err == nil:
			current = &stored
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		next, created, err = persistence.UpsertPending(current, request)
		if err != nil {
			return err
		}

		return set(txn, approvalPrefix+next.ApprovalID, next)
	})
	if err != nil {
		if persistence.IsApprovalDecided(err) || persistence.IsApprovalOwned(err) {
			return nil, false, err
		}

		return nil, false, persistence.NewApprovalError("UpsertApproval", request.ApprovalID, err)
	}

	return next, created, nil
}

func (ar *ApprovalRepository) DecideApproval(ctx context.Context, approvalID string, decision persistence.Decision) (*models.ApprovalRecord, error) {
	var decided *models.ApprovalRecord

	err := ar.store.update(ctx, func(txn *badger.Txn) error {
		var current models.ApprovalRecord

		if err := get(txn, approvalPrefix+approvalID, &current); err != nil {
			return err
		}

		var err error

		decided, err = persistence.ApplyDecision(&current, decision)
		if err != nil {
			return err
		}

		return set(txn, approvalPrefix+approvalID, decided)
	})
	if err != nil {
		if persistence.IsApprovalDecided(err) {
			return nil, err
		}

		return nil, approvalError("DecideApproval", approvalID, err)
	}

	return decided, nil
}

func approvalError(op, approvalID string, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return persistence.NewApprovalError(op, approvalID, persistence.ErrApprovalNotFound)
	}

	return persistence.NewApprovalError(op, approvalID, err)
}
