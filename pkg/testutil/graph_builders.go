// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/flowgate/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a log node with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := models.NewNode(uuid.New().String(), &models.LogData{Message: "test", Level: "info"})
	node.Name = "Test Node"

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithData sets the node payload and the matching type.
func WithData(data models.NodeData) func(*models.Node) {
	return func(n *models.Node) {
		n.Data = data
		n.Type = data.Kind()
	}
}

// WithApproval turns the node into an approval node.
func WithApproval(message string) func(*models.Node) {
	return WithData(&models.ApprovalData{Message: message})
}

// WithAssignments turns the node into a transform node.
func WithAssignments(assignments map[string]string) func(*models.Node) {
	return WithData(&models.TransformData{Assignments: assignments})
}

// CreateTestGraph creates an empty graph.
func CreateTestGraph(overrides ...func(*models.Graph)) *models.Graph {
	graph := &models.Graph{
		ID:    uuid.New().String(),
		Name:  "Test Graph",
		Nodes: []*models.Node{},
		Edges: []*models.Edge{},
	}

	for _, override := range overrides {
		override(graph)
	}

	return graph
}

// WithGraphID sets the graph ID.
func WithGraphID(id string) func(*models.Graph) {
	return func(g *models.Graph) {
		g.ID = id
	}
}

// WithNodes appends nodes in declared order.
func WithNodes(nodes ...*models.Node) func(*models.Graph) {
	return func(g *models.Graph) {
		g.Nodes = append(g.Nodes, nodes...)
	}
}

// WithEdges appends edges in declared order.
func WithEdges(edges ...*models.Edge) func(*models.Graph) {
	return func(g *models.Graph) {
		g.Edges = append(g.Edges, edges...)
	}
}

// CreateTestEdge creates an unconditional edge.
func CreateTestEdge(source, target string) *models.Edge {
	return &models.Edge{
		ID:     source + "->" + target,
		Source: source,
		Target: target,
	}
}

// CreateConditionalEdge creates an edge guarded by a simple condition template.
func CreateConditionalEdge(source, target, expression string) *models.Edge {
	edge := CreateTestEdge(source, target)
	edge.Condition = &models.ConditionalExpression{Language: "simple", Expression: expression}

	return edge
}

// CreateLinearGraph chains the nodes with unconditional edges.
func CreateLinearGraph(nodes ...*models.Node) *models.Graph {
	graph := CreateTestGraph(WithNodes(nodes...))

	for i := 1; i < len(nodes); i++ {
		graph.Edges = append(graph.Edges, CreateTestEdge(nodes[i-1].ID, nodes[i].ID))
	}

	return graph
}
