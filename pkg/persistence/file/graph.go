package file

import (
	"context"
	"errors"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
)

// GraphRepository handles graph-related file operations.
type GraphRepository struct {
	store *Persistence
}

// LoadGraph reads graphs/<workflowID>.json.
func (gr *GraphRepository) LoadGraph(_ context.Context, workflowID string) (*models.Graph, error) {
	var graph models.Graph

	err := gr.store.read(graphsDir, workflowID, &graph)
	if errors.Is(err, errNotExist) {
		return nil, persistence.NewWorkflowError("LoadGraph", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("LoadGraph", workflowID, err)
	}

	return &graph, nil
}

// SaveGraph writes the graph, replacing any previous version.
func (gr *GraphRepository) SaveGraph(_ context.Context, graph *models.Graph) error {
	gr.store.mu.Lock()
	defer gr.store.mu.Unlock()

	err := gr.store.write(graphsDir, graph.ID, graph)
	if err != nil {
		return persistence.NewWorkflowError("SaveGraph", graph.ID, err)
	}

	return nil
}
