// Package models defines the core domain models for graph-based workflow execution
package models

// Graph is a workflow definition as consumed by the execution core.
// Nodes keep their declared order; edge order is the branch tie-break order.
type Graph struct {
	ID    string  `json:"id"             validate:"required"`
	Name  string  `json:"name,omitempty"`
	Nodes []*Node `json:"nodes"          validate:"required,min=1,dive,required"`
	Edges []*Edge `json:"edges"          validate:"dive,required"`
}

// Edge is a directed transition between two nodes, optionally guarded by a condition.
type Edge struct {
	ID        string                 `json:"id,omitempty"`
	Source    string                 `json:"source"              validate:"required"`
	Target    string                 `json:"target"              validate:"required"`
	Condition *ConditionalExpression `json:"condition,omitempty"`
}

// IsConditional reports whether the edge carries a non-empty condition.
func (e *Edge) IsConditional() bool {
	return e.Condition != nil && e.Condition.Expression != ""
}

// NodeByID returns the node with the given id.
func (g *Graph) NodeByID(id string) (*Node, bool) {
	for _, node := range g.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// OutgoingEdges returns the edges leaving nodeID in declared order.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range g.Edges {
		if edge.Source == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// EntryNode returns the first declared node without incoming edges,
// falling back to the first node when every node has a predecessor.
func (g *Graph) EntryNode() (*Node, bool) {
	if len(g.Nodes) == 0 {
		return nil, false
	}

	targets := make(map[string]struct{}, len(g.Edges))
	for _, edge := range g.Edges {
		targets[edge.Target] = struct{}{}
	}

	for _, node := range g.Nodes {
		if _, ok := targets[node.ID]; !ok {
			return node, true
		}
	}

	return g.Nodes[0], true
}
