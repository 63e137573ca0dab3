package file

import (
	"context"
	"errors"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
)

// RunRepository handles run-record file operations.
type RunRepository struct {
	store *Persistence
}

func (rr *RunRepository) SaveRunRecord(_ context.Context, record *models.RunRecord) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	err := rr.store.write(runsDir, record.ExecutionID, record)
	if err != nil {
		return persistence.NewRunError("SaveRunRecord", record.ExecutionID, err)
	}

	return nil
}

func (rr *RunRepository) RunRecord(_ context.Context, executionID string) (*models.RunRecord, error) {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	return rr.load("RunRecord", executionID)
}

func (rr *RunRepository) PatchRunRecord(_ context.Context, executionID string, patch models.RunPatch) (*models.RunRecord, error) {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	record, err := rr.load("PatchRunRecord", executionID)
	if err != nil {
		return nil, err
	}

	record.Apply(patch)

	err = rr.store.write(runsDir, executionID, record)
	if err != nil {
		return nil, persistence.NewRunError("PatchRunRecord", executionID, err)
	}

	return record, nil
}

func (rr *RunRepository) load(op, executionID string) (*models.RunRecord, error) {
	var record models.RunRecord

	err := rr.store.read(runsDir, executionID, &record)
	if errors.Is(err, errNotExist) {
		return nil, persistence.NewRunError(op, executionID, persistence.ErrRunNotFound)
	}

	if err != nil {
		return nil, persistence.NewRunError(op, executionID, err)
	}

	return &record, nil
}
