package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// NodeKind discriminates the payload carried by a node.
type NodeKind string

// Built-in node kinds.
const (
	NodeKindExtraction NodeKind = "extraction"
	NodeKindApproval   NodeKind = "approval"
	NodeKindTool       NodeKind = "tool"
	NodeKindTransform  NodeKind = "transform"
	NodeKindLog        NodeKind = "log"
)

var ErrUnknownNodeKind = errors.New("unknown node kind")

// NodeData is the kind-specific payload of a node.
type NodeData interface {
	Kind() NodeKind
}

// Node is a unit of work in a graph. Data always matches Type.
type Node struct {
	ID   string   `json:"id"             validate:"required"`
	Type NodeKind `json:"type"           validate:"required"`
	Name string   `json:"name,omitempty"`
	Data NodeData `json:"data"`
}

// NewNode builds a node whose Type is taken from its payload.
func NewNode(id string, data NodeData) *Node {
	return &Node{
		ID:   id,
		Type: data.Kind(),
		Data: data,
	}
}

var (
	nodeDataMu sync.RWMutex

	nodeDataFactories = map[NodeKind]func() NodeData{
		NodeKindExtraction: func() NodeData { return &ExtractionData{} },
		NodeKindApproval:   func() NodeData { return &ApprovalData{} },
		NodeKindTool:       func() NodeData { return &ToolData{} },
		NodeKindTransform:  func() NodeData { return &TransformData{} },
		NodeKindLog:        func() NodeData { return &LogData{} },
	}
)

// RegisterNodeKind makes a custom payload type decodable. Used by executor plugins.
func RegisterNodeKind(kind NodeKind, factory func() NodeData) {
	nodeDataMu.Lock()
	defer nodeDataMu.Unlock()

	nodeDataFactories[kind] = factory
}

func nodeDataFactory(kind NodeKind) (func() NodeData, bool) {
	nodeDataMu.RLock()
	defer nodeDataMu.RUnlock()

	factory, ok := nodeDataFactories[kind]

	return factory, ok
}

type nodeJSON struct {
	ID   string          `json:"id"`
	Type NodeKind        `json:"type"`
	Name string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON decodes the payload into the struct registered for the node type.
func (n *Node) UnmarshalJSON(raw []byte) error {
	var decoded nodeJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}

	factory, ok := nodeDataFactory(decoded.Type)
	if !ok {
		return fmt.Errorf("node %s: %w: %q", decoded.ID, ErrUnknownNodeKind, decoded.Type)
	}

	data := factory()
	if len(decoded.Data) > 0 && string(decoded.Data) != "null" {
		if err := json.Unmarshal(decoded.Data, data); err != nil {
			return fmt.Errorf("node %s: invalid %s data: %w", decoded.ID, decoded.Type, err)
		}
	}

	n.ID = decoded.ID
	n.Type = decoded.Type
	n.Name = decoded.Name
	n.Data = data

	return nil
}

// ExtractionData configures a model-backed extraction node.
type ExtractionData struct {
	Model         string         `json:"model,omitempty"`
	Instructions  string         `json:"instructions"`
	OutputSchema  map[string]any `json:"output_schema,omitempty"`
	Tools         []ToolBinding  `json:"tools,omitempty"`
	MaxToolRounds int            `json:"max_tool_rounds,omitempty"`
}

func (*ExtractionData) Kind() NodeKind { return NodeKindExtraction }

// ToolBinding exposes one remote tool to the model of an extraction node.
type ToolBinding struct {
	ServerURL      string         `json:"server_url"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	InputSchema    map[string]any `json:"input_schema,omitempty"`
	AuthCredential string         `json:"auth_credential,omitempty"`
}

// ApprovalData configures a node that suspends the run until a human decides.
// Message and ApprovalID are templates rendered against the execution state.
type ApprovalData struct {
	Message    string `json:"message"`
	ApprovalID string `json:"approval_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

func (*ApprovalData) Kind() NodeKind { return NodeKindApproval }

// ToolData configures a single direct tool invocation.
type ToolData struct {
	ServerURL      string         `json:"server_url"`
	Tool           string         `json:"tool"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	AuthCredential string         `json:"auth_credential,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}

func (*ToolData) Kind() NodeKind { return NodeKindTool }

// TransformData assigns rendered templates to variables.
type TransformData struct {
	Assignments map[string]string `json:"assignments"`
}

func (*TransformData) Kind() NodeKind { return NodeKindTransform }

// LogData renders and logs a message.
type LogData struct {
	Message string `json:"message"`
	Level   string `json:"level,omitempty"`
}

func (*LogData) Kind() NodeKind { return NodeKindLog }
