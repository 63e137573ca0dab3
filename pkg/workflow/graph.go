package workflow

import (
	"fmt"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/template"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateGraph checks that a graph can be executed: every node carries the payload
// of its type, ids are unique, and edges connect declared nodes with supported conditions.
func ValidateGraph(graph *models.Graph) error {
	if graph == nil {
		return fmt.Errorf("%w: graph is nil", ErrInvalidGraph)
	}

	if err := validate.Struct(graph); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidGraph, err)
	}

	seen := make(map[string]struct{}, len(graph.Nodes))

	for _, node := range graph.Nodes {
		if _, dup := seen[node.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %s", ErrInvalidGraph, node.ID)
		}

		seen[node.ID] = struct{}{}

		if node.Data == nil {
			return fmt.Errorf("%w: node %s has no data", ErrInvalidGraph, node.ID)
		}

		if node.Data.Kind() != node.Type {
			return fmt.Errorf("%w: node %s is %s but carries %s data", ErrInvalidGraph, node.ID, node.Type, node.Data.Kind())
		}
	}

	for _, edge := range graph.Edges {
		if _, ok := seen[edge.Source]; !ok {
			return fmt.Errorf("%w: edge source %s is not a node", ErrInvalidGraph, edge.Source)
		}

		if _, ok := seen[edge.Target]; !ok {
			return fmt.Errorf("%w: edge target %s is not a node", ErrInvalidGraph, edge.Target)
		}

		if edge.IsConditional() && models.GetConditional(*edge.Condition) == nil {
			return fmt.Errorf("%w: edge %s->%s uses unsupported condition language %q",
				ErrInvalidGraph, edge.Source, edge.Target, edge.Condition.Language)
		}
	}

	return nil
}

// nextNodeID selects the edge to follow from nodeID. The first conditional edge whose
// condition holds wins, then the first unconditional edge. An empty id means the node
// has no outgoing edges and the run is complete.
func nextNodeID(graph *models.Graph, nodeID string, scope template.Scope) (string, error) {
	edges := graph.OutgoingEdges(nodeID)
	if len(edges) == 0 {
		return "", nil
	}

	var fallback *models.Edge

	for _, edge := range edges {
		if !edge.IsConditional() {
			if fallback == nil {
				fallback = edge
			}

			continue
		}

		ok, err := evaluate(edge.Condition, scope)
		if err != nil {
			return "", fmt.Errorf("condition on edge %s->%s: %w", edge.Source, edge.Target, err)
		}

		if ok {
			return edge.Target, nil
		}
	}

	if fallback != nil {
		return fallback.Target, nil
	}

	return "", fmt.Errorf("%w from node %s", ErrUnreachableBranch, nodeID)
}

func evaluate(condition *models.ConditionalExpression, scope template.Scope) (bool, error) {
	interpreter := models.GetConditional(*condition)
	if interpreter == nil {
		return false, fmt.Errorf("unsupported condition language %q", condition.Language)
	}

	value, err := template.RenderWithState(condition.Expression, scope)
	if err != nil {
		return false, err
	}

	return interpreter.Evaluate(value)
}
