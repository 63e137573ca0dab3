// Package events defines event types and structures for run and approval lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every run and approval event.
const Topic = "flowgate.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent       EventType = "run.started"
	RunNodeCompletedEvent EventType = "run.node.completed"
	RunPausedEvent        EventType = "run.paused"
	RunResumedEvent       EventType = "run.resumed"
	RunCompletedEvent     EventType = "run.completed"
	RunFailedEvent        EventType = "run.failed"
	RunCancelledEvent     EventType = "run.cancelled"

	// Approval events.
	ApprovalRequestedEvent EventType = "approval.requested"
	ApprovalDecidedEvent   EventType = "approval.decided"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id"`
	ExecutionID string         `json:"execution_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Key is the partition key of the event.
func (b BaseEvent) Key() string {
	return b.ExecutionID
}

type RunStarted struct {
	BaseEvent

	EntryNodeID string `json:"entry_node_id"`
	Input       any    `json:"input,omitempty"`
}

func (e RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunNodeCompleted struct {
	BaseEvent

	NodeID     string   `json:"node_id"`
	NodeType   string   `json:"node_type"`
	NextNodeID string   `json:"next_node_id,omitempty"`
	DurationMs int64    `json:"duration_ms"`
	TokensUsed int      `json:"tokens_used,omitempty"`
	ToolsUsed  []string `json:"tools_used,omitempty"`
}

func (e RunNodeCompleted) GetType() EventType {
	return RunNodeCompletedEvent
}

type RunPaused struct {
	BaseEvent

	NodeID     string `json:"node_id"`
	ApprovalID string `json:"approval_id"`
}

func (e RunPaused) GetType() EventType {
	return RunPausedEvent
}

type RunResumed struct {
	BaseEvent

	NodeID          string                `json:"node_id"`
	ApprovalID      string                `json:"approval_id"`
	Decision        models.ApprovalStatus `json:"decision"`
	PauseDurationMs int64                 `json:"pause_duration_ms"`
}

func (e RunResumed) GetType() EventType {
	return RunResumedEvent
}

type RunCompleted struct {
	BaseEvent

	NodesExecuted int   `json:"nodes_executed"`
	DurationMs    int64 `json:"duration_ms"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}

type RunCancelled struct {
	BaseEvent

	NodeID        string `json:"node_id"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e RunCancelled) GetType() EventType {
	return RunCancelledEvent
}

type ApprovalRequested struct {
	BaseEvent

	ApprovalID string `json:"approval_id"`
	NodeID     string `json:"node_id"`
	Message    string `json:"message"`
	UserID     string `json:"user_id,omitempty"`
}

func (e ApprovalRequested) GetType() EventType {
	return ApprovalRequestedEvent
}

type ApprovalDecided struct {
	BaseEvent

	ApprovalID string                `json:"approval_id"`
	NodeID     string                `json:"node_id"`
	Status     models.ApprovalStatus `json:"status"`
	DecidedBy  string                `json:"decided_by,omitempty"`
	Comment    string                `json:"comment,omitempty"`
}

func (e ApprovalDecided) GetType() EventType {
	return ApprovalDecidedEvent
}

func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
		Metadata:    make(map[string]any),
	}
}

// New returns an empty event of the given type for decoding, or false for unknown types.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case RunStartedEvent:
		return &RunStarted{}, true
	case RunNodeCompletedEvent:
		return &RunNodeCompleted{}, true
	case RunPausedEvent:
		return &RunPaused{}, true
	case RunResumedEvent:
		return &RunResumed{}, true
	case RunCompletedEvent:
		return &RunCompleted{}, true
	case RunFailedEvent:
		return &RunFailed{}, true
	case RunCancelledEvent:
		return &RunCancelled{}, true
	case ApprovalRequestedEvent:
		return &ApprovalRequested{}, true
	case ApprovalDecidedEvent:
		return &ApprovalDecided{}, true
	default:
		return nil, false
	}
}
