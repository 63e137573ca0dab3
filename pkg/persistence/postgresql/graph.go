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

// GraphRepository handles graph-related database operations.
type GraphRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewGraphRepository creates a new graph repository.
func NewGraphRepository(db *sql.DB, logger *slog.Logger) *GraphRepository {
	return &GraphRepository{db: db, logger: logger}
}

// SaveGraph stores the graph definition, replacing any previous version.
func (gr *GraphRepository) SaveGraph(ctx context.Context, graph *models.Graph) error {
	definition, err := json.Marshal(graph)
	if err != nil {
		return persistence.NewWorkflowError("SaveGraph", graph.ID, fmt.Errorf("failed to marshal graph: %w", err))
	}

	query := `
		INSERT INTO graphs (id, name, definition)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			definition = EXCLUDED.definition,
			updated_at = NOW()
	`

	_, err = gr.db.ExecContext(ctx, query, graph.ID, graph.Name, definition)
	if err != nil {
		gr.logger.ErrorContext(ctx, "Failed to save graph", "workflow_id", graph.ID, "error", err)

		return persistence.NewWorkflowError("SaveGraph", graph.ID, err)
	}

	return nil
}

// LoadGraph returns the graph stored under workflowID.
func (gr *GraphRepository) LoadGraph(ctx context.Context, workflowID string) (*models.Graph, error) {
	var definition []byte

	err := gr.db.QueryRowContext(ctx, "SELECT definition FROM graphs WHERE id = $1", workflowID).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewWorkflowError("LoadGraph", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, persistence.NewWorkflowError("LoadGraph", workflowID, err)
	}

	var graph models.Graph

	err = json.Unmarshal(definition, &graph)
	if err != nil {
		return nil, persistence.NewWorkflowError("LoadGraph", workflowID, fmt.Errorf("failed to unmarshal graph: %w", err))
	}

	return &graph, nil
}
