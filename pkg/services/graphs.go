package services

import (
	"context"
	"fmt"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
	"github.com/dukex/flowgate/pkg/workflow"
)

// Graphs stores workflow graphs for the execution core.
type Graphs struct {
	persistence persistence.Persistence
}

// NewGraphs creates a new graph service.
func NewGraphs(persistence persistence.Persistence) *Graphs {
	return &Graphs{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (g *Graphs) HealthCheck(ctx context.Context) (string, bool) {
	if g.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := g.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Save validates and stores graph under id. An empty graph id takes id.
func (g *Graphs) Save(ctx context.Context, id string, graph *models.Graph) (*models.Graph, error) {
	if graph == nil {
		return nil, ErrGraphNil
	}

	if graph.ID == "" {
		graph.ID = id
	}

	if graph.ID != id {
		return nil, NewValidationError("Save", "graph_id_mismatch",
			fmt.Sprintf("graph id %q does not match %q", graph.ID, id), ErrGraphIDChanged)
	}

	if err := workflow.ValidateGraph(graph); err != nil {
		return nil, err
	}

	if err := g.persistence.GraphRepository().SaveGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("failed to save graph: %w", err)
	}

	return graph, nil
}

// Get returns the graph stored under id.
func (g *Graphs) Get(ctx context.Context, id string) (*models.Graph, error) {
	return g.persistence.GraphRepository().LoadGraph(ctx, id)
}
