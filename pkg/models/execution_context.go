package models

import (
	"maps"
	"slices"
	"time"
)

// Well-known variable names.
const (
	VariableInput      = "input"
	VariableLastOutput = "lastOutput"
	VariableApproval   = "approval"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning         RunStatus = "running"
	RunStatusCompleted       RunStatus = "completed"
	RunStatusFailed          RunStatus = "failed"
	RunStatusWaitingApproval RunStatus = "waiting-approval"
	RunStatusCancelled       RunStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// ChatRole tags a chat message.
type ChatRole string

const (
	ChatRoleSystem    ChatRole = "system"
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleTool      ChatRole = "tool"
)

// ChatMessage is one entry of the append-only chat history of a run.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	NodeID    string    `json:"node_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionState is the mutable state shared by every node of one run.
type ExecutionState struct {
	Variables   map[string]any `json:"variables"`
	ChatHistory []ChatMessage  `json:"chat_history"`
	NodeResults map[string]any `json:"node_results"`
	Path        []string       `json:"path"`
}

// NewExecutionState creates an empty state with the run input in place.
func NewExecutionState(input any) ExecutionState {
	state := ExecutionState{
		Variables:   make(map[string]any),
		ChatHistory: []ChatMessage{},
		NodeResults: make(map[string]any),
		Path:        []string{},
	}

	if input != nil {
		state.Variables[VariableInput] = input
	}

	return state
}

// Clone returns a copy whose maps and slices can be changed without affecting s.
// Values stored in the maps are shared.
func (s ExecutionState) Clone() ExecutionState {
	clone := ExecutionState{
		Variables:   maps.Clone(s.Variables),
		ChatHistory: slices.Clone(s.ChatHistory),
		NodeResults: maps.Clone(s.NodeResults),
		Path:        slices.Clone(s.Path),
	}

	if clone.Variables == nil {
		clone.Variables = make(map[string]any)
	}

	if clone.NodeResults == nil {
		clone.NodeResults = make(map[string]any)
	}

	return clone
}

// Visited reports whether nodeID was already executed in this run.
func (s ExecutionState) Visited(nodeID string) bool {
	return slices.Contains(s.Path, nodeID)
}

// Merge applies one node's result: variables are shallow-merged (last writer wins),
// the node result is set and messages are appended.
func (s *ExecutionState) Merge(nodeID string, variables map[string]any, output any, messages []ChatMessage) {
	if s.Variables == nil {
		s.Variables = make(map[string]any)
	}

	if s.NodeResults == nil {
		s.NodeResults = make(map[string]any)
	}

	for key, value := range variables {
		s.Variables[key] = value
	}

	s.NodeResults[nodeID] = output
	s.ChatHistory = append(s.ChatHistory, messages...)
	s.Path = append(s.Path, nodeID)
}

// TemplateData exposes the state to templates and conditions.
func (s ExecutionState) TemplateData(executionID, workflowID string) map[string]any {
	return map[string]any{
		"variables":    s.Variables,
		"vars":         s.Variables,
		"node_results": s.NodeResults,
		"chat_history": s.ChatHistory,
		"execution": map[string]any{
			"id":          executionID,
			"workflow_id": workflowID,
		},
	}
}

// RunRecord is the durable record of one run.
type RunRecord struct {
	ExecutionID     string         `json:"execution_id"`
	WorkflowID      string         `json:"workflow_id"`
	Status          RunStatus      `json:"status"`
	CurrentNodeID   string         `json:"current_node_id"`
	ApprovalID      string         `json:"approval_id,omitempty"`
	CancelRequested bool           `json:"cancel_requested,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Error           string         `json:"error,omitempty"`
	State           ExecutionState `json:"state"`
}

// RunPatch lists the fields to change on a run record. Nil fields are left untouched.
type RunPatch struct {
	Status          *RunStatus
	CurrentNodeID   *string
	ApprovalID      *string
	CancelRequested *bool
	CompletedAt     *time.Time
	Error           *string
	State           *ExecutionState
	UpdatedAt       time.Time
}

// Apply writes the non-nil patch fields into r.
func (r *RunRecord) Apply(patch RunPatch) {
	if patch.Status != nil {
		r.Status = *patch.Status
	}

	if patch.CurrentNodeID != nil {
		r.CurrentNodeID = *patch.CurrentNodeID
	}

	if patch.ApprovalID != nil {
		r.ApprovalID = *patch.ApprovalID
	}

	if patch.CancelRequested != nil {
		r.CancelRequested = *patch.CancelRequested
	}

	if patch.CompletedAt != nil {
		completedAt := *patch.CompletedAt
		r.CompletedAt = &completedAt
	}

	if patch.Error != nil {
		r.Error = *patch.Error
	}

	if patch.State != nil {
		r.State = patch.State.Clone()
	}

	if !patch.UpdatedAt.IsZero() {
		r.UpdatedAt = patch.UpdatedAt
	}
}
