// Package workflow implements the execution state machine that drives runs over workflow graphs.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/eventbus"
	"github.com/dukex/flowgate/pkg/events"
	"github.com/dukex/flowgate/pkg/llm"
	"github.com/dukex/flowgate/pkg/lock"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/otelhelper"
	"github.com/dukex/flowgate/pkg/persistence"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executors resolves the executor of a node kind. Implemented by registry.Registry.
type Executors interface {
	Executor(kind models.NodeKind) (protocol.Executor, error)
}

// Config carries the collaborators of a Machine.
type Config struct {
	Persistence persistence.Persistence
	Executors   Executors
	Gate        *approval.Gate
	Credentials llm.CredentialSource

	// Optional.
	Locker    lock.Locker
	Publisher eventbus.EventPublisher
	Tracer    trace.Tracer
	Logger    *slog.Logger
}

// StepResult is the outcome of one Step.
type StepResult struct {
	Status     models.RunStatus `json:"status"`
	NextNodeID string           `json:"next_node_id,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Machine moves runs through their graphs one node at a time. Every transition is
// persisted before it is reported, so a run can continue in another process.
type Machine struct {
	graphs      persistence.GraphRepository
	runs        persistence.RunRepository
	executors   Executors
	gate        *approval.Gate
	credentials llm.CredentialSource
	locker      lock.Locker
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// NewMachine validates cfg and creates a machine.
func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Persistence == nil {
		return nil, errors.New("workflow machine requires persistence")
	}

	if cfg.Executors == nil {
		return nil, errors.New("workflow machine requires executors")
	}

	if cfg.Gate == nil {
		return nil, errors.New("workflow machine requires an approval gate")
	}

	m := &Machine{
		graphs:      cfg.Persistence.GraphRepository(),
		runs:        cfg.Persistence.RunRepository(),
		executors:   cfg.Executors,
		gate:        cfg.Gate,
		credentials: cfg.Credentials,
		locker:      cfg.Locker,
		publisher:   cfg.Publisher,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger,
		now:         time.Now,
		newID: func() string {
			return "exec-" + uuid.New().String()
		},
	}

	if m.locker == nil {
		m.locker = lock.NewMemory()
	}

	if m.publisher == nil {
		m.publisher = eventbus.Discard
	}

	if m.tracer == nil {
		m.tracer = otel.Tracer("flowgate/workflow")
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	m.logger = m.logger.With("module", "workflow_machine")

	return m, nil
}

// Start creates a running run positioned on the graph's entry node.
func (m *Machine) Start(ctx context.Context, workflowID string, input any) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.start",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	graph, err := m.graphs.LoadGraph(ctx, workflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	if err := ValidateGraph(graph); err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	entry, _ := graph.EntryNode()
	now := m.now().UTC()

	record := &models.RunRecord{
		ExecutionID:   m.newID(),
		WorkflowID:    workflowID,
		Status:        models.RunStatusRunning,
		CurrentNodeID: entry.ID,
		StartedAt:     now,
		UpdatedAt:     now,
		State:         models.NewExecutionState(input),
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, record.ExecutionID))

	if err := m.runs.SaveRunRecord(ctx, record); err != nil {
		otelhelper.SetError(span, err)

		return "", err
	}

	m.logger.InfoContext(ctx, "run started",
		"execution_id", record.ExecutionID,
		"workflow_id", workflowID,
		"entry_node_id", entry.ID,
	)

	m.publish(ctx, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, workflowID, record.ExecutionID),
		EntryNodeID: entry.ID,
		Input:       input,
	})

	return record.ExecutionID, nil
}

// Step executes the node under the run's cursor and follows one edge.
//
// Node failures, unreachable branches and cycles end the run as failed and are
// reported in the StepResult; the returned error is reserved for calls that did not
// change the run (busy, wrong status, storage failures).
func (m *Machine) Step(ctx context.Context, executionID string) (StepResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.step",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	result, err := m.step(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(result.Status)))

	return result, err
}

func (m *Machine) step(ctx context.Context, executionID string) (StepResult, error) {
	const op = "Step"

	unlock, err := m.acquire(ctx, op, executionID)
	if err != nil {
		return StepResult{}, err
	}
	defer unlock()

	run, err := m.runs.RunRecord(ctx, executionID)
	if err != nil {
		return StepResult{}, NewRunError(op, executionID, err)
	}

	if run.Status != models.RunStatusRunning {
		return StepResult{Status: run.Status}, NewRunError(op, executionID,
			fmt.Errorf("%w: status is %s", ErrRunNotRunning, run.Status))
	}

	if run.CancelRequested {
		return m.cancel(ctx, run)
	}

	graph, err := m.graphs.LoadGraph(ctx, run.WorkflowID)
	if err != nil {
		return StepResult{}, NewRunError(op, executionID, err)
	}

	node, ok := graph.NodeByID(run.CurrentNodeID)
	if !ok {
		return m.fail(ctx, run, run.CurrentNodeID, fmt.Errorf("node %s not found in workflow %s", run.CurrentNodeID, run.WorkflowID))
	}

	if run.State.Visited(node.ID) {
		return m.fail(ctx, run, node.ID, fmt.Errorf("%w: node %s already executed", ErrCycleDetected, node.ID))
	}

	started := m.now()

	result, err := m.execute(ctx, run, node)
	if err != nil {
		return m.fail(ctx, run, node.ID, err)
	}

	if result.Await != nil {
		return m.pause(ctx, run, node, result.Await)
	}

	state := run.State.Clone()
	state.Merge(node.ID, result.Variables, result.Output, result.Messages)

	return m.follow(ctx, run, graph, node, state, nodeReport{
		duration:   m.now().Sub(started),
		tokensUsed: result.TokensUsed,
		toolsUsed:  result.ToolsUsed,
	})
}

// Resume continues a run paused at an approval node with its decided approval record.
func (m *Machine) Resume(ctx context.Context, executionID string, decision *models.ApprovalRecord) (models.RunStatus, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.resume",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	result, err := m.resume(ctx, executionID, decision)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(result.Status)))

	return result.Status, err
}

func (m *Machine) resume(ctx context.Context, executionID string, decision *models.ApprovalRecord) (StepResult, error) {
	const op = "Resume"

	unlock, err := m.acquire(ctx, op, executionID)
	if err != nil {
		return StepResult{}, err
	}
	defer unlock()

	run, err := m.runs.RunRecord(ctx, executionID)
	if err != nil {
		return StepResult{}, NewRunError(op, executionID, err)
	}

	if run.Status != models.RunStatusWaitingApproval {
		return StepResult{Status: run.Status}, NewRunError(op, executionID,
			fmt.Errorf("%w: status is %s", ErrRunNotWaiting, run.Status))
	}

	if err := matchPausePoint(run, decision); err != nil {
		return StepResult{Status: run.Status}, NewRunError(op, executionID, err)
	}

	if run.CancelRequested {
		return m.cancel(ctx, run)
	}

	graph, err := m.graphs.LoadGraph(ctx, run.WorkflowID)
	if err != nil {
		return StepResult{}, NewRunError(op, executionID, err)
	}

	node, ok := graph.NodeByID(run.CurrentNodeID)
	if !ok {
		return m.fail(ctx, run, run.CurrentNodeID, fmt.Errorf("node %s not found in workflow %s", run.CurrentNodeID, run.WorkflowID))
	}

	m.logger.InfoContext(ctx, "run resumed",
		"execution_id", run.ExecutionID,
		"node_id", node.ID,
		"approval_id", decision.ApprovalID,
		"decision", decision.Status,
	)

	m.publish(ctx, events.RunResumed{
		BaseEvent:       events.NewBaseEvent(events.RunResumedEvent, run.WorkflowID, run.ExecutionID),
		NodeID:          node.ID,
		ApprovalID:      decision.ApprovalID,
		Decision:        decision.Status,
		PauseDurationMs: m.now().Sub(run.UpdatedAt).Milliseconds(),
	})

	if decision.Status == models.ApprovalStatusRejected {
		return m.fail(ctx, run, node.ID, fmt.Errorf("approval %s rejected", decision.ApprovalID))
	}

	outcome := approvalOutcome(decision)

	state := run.State.Clone()
	state.Merge(node.ID, map[string]any{models.VariableApproval: outcome}, outcome, nil)

	return m.follow(ctx, run, graph, node, state, nodeReport{})
}

// Advance steps the run until it leaves the running status.
func (m *Machine) Advance(ctx context.Context, executionID string) (StepResult, error) {
	for {
		result, err := m.Step(ctx, executionID)
		if err != nil {
			return result, err
		}

		if result.Status != models.RunStatusRunning {
			return result, nil
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
}

// Cancel ends a run. A run that is not in flight is cancelled at once; a run with a
// step in flight is flagged and cancelled at its next step boundary.
func (m *Machine) Cancel(ctx context.Context, executionID string) (models.RunStatus, error) {
	const op = "Cancel"

	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.cancel",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	unlocker, err := m.locker.TryLock(ctx, runLockKey(executionID))
	if err != nil {
		if !errors.Is(err, lock.ErrHeld) {
			otelhelper.SetError(span, err)

			return "", NewRunError(op, executionID, err)
		}

		requested := true

		run, err := m.runs.PatchRunRecord(ctx, executionID, models.RunPatch{
			CancelRequested: &requested,
			UpdatedAt:       m.now().UTC(),
		})
		if err != nil {
			otelhelper.SetError(span, err)

			return "", NewRunError(op, executionID, err)
		}

		m.logger.InfoContext(ctx, "run cancellation requested", "execution_id", executionID)

		return run.Status, nil
	}

	defer m.release(ctx, unlocker, executionID)

	run, err := m.runs.RunRecord(ctx, executionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return "", NewRunError(op, executionID, err)
	}

	if run.Status.IsTerminal() {
		return run.Status, NewRunError(op, executionID, fmt.Errorf("%w: status is %s", ErrRunNotRunning, run.Status))
	}

	result, err := m.cancel(ctx, run)

	return result.Status, err
}

// Status returns the stored run record.
func (m *Machine) Status(ctx context.Context, executionID string) (*models.RunRecord, error) {
	run, err := m.runs.RunRecord(ctx, executionID)
	if err != nil {
		return nil, NewRunError("Status", executionID, err)
	}

	return run, nil
}

type nodeReport struct {
	duration   time.Duration
	tokensUsed int
	toolsUsed  []string
}

// follow persists the merged state and moves the cursor along the selected edge.
func (m *Machine) follow(ctx context.Context, run *models.RunRecord, graph *models.Graph, node *models.Node, state models.ExecutionState, report nodeReport) (StepResult, error) {
	next, err := nextNodeID(graph, node.ID, scopeOf(run, state))
	if err == nil && next != "" && state.Visited(next) {
		err = fmt.Errorf("%w: edge %s->%s re-enters a visited node", ErrCycleDetected, node.ID, next)
	}

	if err != nil {
		return m.failWithState(ctx, run, node.ID, err, &state)
	}

	now := m.now().UTC()
	clearApproval := ""

	patch := models.RunPatch{
		State:      &state,
		ApprovalID: &clearApproval,
		UpdatedAt:  now,
	}

	status := models.RunStatusRunning
	if next == "" {
		status = models.RunStatusCompleted
		patch.CompletedAt = &now
	} else {
		patch.CurrentNodeID = &next
	}

	patch.Status = &status

	if _, err := m.runs.PatchRunRecord(ctx, run.ExecutionID, patch); err != nil {
		return StepResult{}, NewRunError("Step", run.ExecutionID, err)
	}

	m.logger.InfoContext(ctx, "node completed",
		"execution_id", run.ExecutionID,
		"node_id", node.ID,
		"next_node_id", next,
		"duration", report.duration,
	)

	m.publish(ctx, events.RunNodeCompleted{
		BaseEvent:  events.NewBaseEvent(events.RunNodeCompletedEvent, run.WorkflowID, run.ExecutionID),
		NodeID:     node.ID,
		NodeType:   string(node.Type),
		NextNodeID: next,
		DurationMs: report.duration.Milliseconds(),
		TokensUsed: report.tokensUsed,
		ToolsUsed:  report.toolsUsed,
	})

	if status == models.RunStatusCompleted {
		m.logger.InfoContext(ctx, "run completed", "execution_id", run.ExecutionID, "nodes_executed", len(state.Path))

		m.publish(ctx, events.RunCompleted{
			BaseEvent:     events.NewBaseEvent(events.RunCompletedEvent, run.WorkflowID, run.ExecutionID),
			NodesExecuted: len(state.Path),
			DurationMs:    now.Sub(run.StartedAt).Milliseconds(),
		})

		return StepResult{Status: status}, nil
	}

	return StepResult{Status: status, NextNodeID: next}, nil
}

// pause records the approval checkpoint and suspends the run on node.
func (m *Machine) pause(ctx context.Context, run *models.RunRecord, node *models.Node, await *protocol.ApprovalRequest) (StepResult, error) {
	record, err := m.gate.RequestApproval(ctx, approval.Request{
		ApprovalID:  await.ApprovalID,
		ExecutionID: run.ExecutionID,
		WorkflowID:  run.WorkflowID,
		NodeID:      node.ID,
		Message:     await.Message,
		UserID:      await.UserID,
	})
	if err != nil {
		return m.fail(ctx, run, node.ID, err)
	}

	if record.ExecutionID != run.ExecutionID || record.NodeID != node.ID {
		return m.fail(ctx, run, node.ID, fmt.Errorf("%w: approval %s for %s/%s, run paused on %s/%s",
			ErrApprovalMismatch, record.ApprovalID, record.ExecutionID, record.NodeID, run.ExecutionID, node.ID))
	}

	status := models.RunStatusWaitingApproval
	approvalID := await.ApprovalID

	if _, err := m.runs.PatchRunRecord(ctx, run.ExecutionID, models.RunPatch{
		Status:     &status,
		ApprovalID: &approvalID,
		UpdatedAt:  m.now().UTC(),
	}); err != nil {
		return StepResult{}, NewRunError("Step", run.ExecutionID, err)
	}

	m.logger.InfoContext(ctx, "run paused",
		"execution_id", run.ExecutionID,
		"node_id", node.ID,
		"approval_id", approvalID,
	)

	m.publish(ctx, events.RunPaused{
		BaseEvent:  events.NewBaseEvent(events.RunPausedEvent, run.WorkflowID, run.ExecutionID),
		NodeID:     node.ID,
		ApprovalID: approvalID,
	})

	return StepResult{Status: status, NextNodeID: node.ID}, nil
}

func (m *Machine) fail(ctx context.Context, run *models.RunRecord, nodeID string, cause error) (StepResult, error) {
	return m.failWithState(ctx, run, nodeID, cause, nil)
}

// failWithState ends the run as failed. A non-nil state is persisted with the failure.
func (m *Machine) failWithState(ctx context.Context, run *models.RunRecord, nodeID string, cause error, state *models.ExecutionState) (StepResult, error) {
	now := m.now().UTC()
	status := models.RunStatusFailed
	message := cause.Error()

	if _, err := m.runs.PatchRunRecord(ctx, run.ExecutionID, models.RunPatch{
		Status:      &status,
		Error:       &message,
		CompletedAt: &now,
		State:       state,
		UpdatedAt:   now,
	}); err != nil {
		return StepResult{}, NewRunError("Step", run.ExecutionID, errors.Join(err, cause))
	}

	m.logger.ErrorContext(ctx, "run failed",
		"execution_id", run.ExecutionID,
		"node_id", nodeID,
		"error", message,
	)

	m.publish(ctx, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, run.WorkflowID, run.ExecutionID),
		NodeID:    nodeID,
		Error:     message,
	})

	return StepResult{Status: status, Error: message}, nil
}

func (m *Machine) cancel(ctx context.Context, run *models.RunRecord) (StepResult, error) {
	now := m.now().UTC()
	status := models.RunStatusCancelled

	if _, err := m.runs.PatchRunRecord(ctx, run.ExecutionID, models.RunPatch{
		Status:      &status,
		CompletedAt: &now,
		UpdatedAt:   now,
	}); err != nil {
		return StepResult{}, NewRunError("Cancel", run.ExecutionID, err)
	}

	m.logger.InfoContext(ctx, "run cancelled", "execution_id", run.ExecutionID, "node_id", run.CurrentNodeID)

	m.publish(ctx, events.RunCancelled{
		BaseEvent:     events.NewBaseEvent(events.RunCancelledEvent, run.WorkflowID, run.ExecutionID),
		NodeID:        run.CurrentNodeID,
		NodesExecuted: len(run.State.Path),
	})

	return StepResult{Status: status}, nil
}

// execute invokes the node's executor with a snapshot of the state. Panics become errors.
func (m *Machine) execute(ctx context.Context, run *models.RunRecord, node *models.Node) (result *protocol.Result, err error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.node.execute",
		attribute.String(otelhelper.ExecutionIDKey, run.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: node %s: %v", ErrNodePanicked, node.ID, r)
		}

		if err != nil {
			otelhelper.SetError(span, err)
		}
	}()

	executor, err := m.executors.Executor(node.Type)
	if err != nil {
		return nil, err
	}

	result, err = executor.Execute(ctx, protocol.Request{
		ExecutionID: run.ExecutionID,
		WorkflowID:  run.WorkflowID,
		Node:        node,
		State:       run.State.Clone(),
		Credentials: m.credentials,
	})
	if err != nil {
		return nil, err
	}

	if result == nil {
		result = &protocol.Result{}
	}

	return result, nil
}

// acquire takes the run lock or fails fast with ErrRunBusy.
func (m *Machine) acquire(ctx context.Context, op, executionID string) (func(), error) {
	unlocker, err := m.locker.TryLock(ctx, runLockKey(executionID))
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return nil, NewRunError(op, executionID, ErrRunBusy)
		}

		return nil, NewRunError(op, executionID, err)
	}

	return func() { m.release(ctx, unlocker, executionID) }, nil
}

func (m *Machine) release(ctx context.Context, unlocker lock.Unlocker, executionID string) {
	if err := unlocker.Unlock(context.WithoutCancel(ctx)); err != nil {
		m.logger.WarnContext(ctx, "failed to release run lock", "execution_id", executionID, "error", err)
	}
}

func (m *Machine) publish(ctx context.Context, event interface {
	eventbus.Event
	Key() string
}) {
	if err := m.publisher.Publish(ctx, event.Key(), event); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func runLockKey(executionID string) string {
	return "run:" + executionID
}

func matchPausePoint(run *models.RunRecord, decision *models.ApprovalRecord) error {
	if decision == nil {
		return fmt.Errorf("%w: no approval record", ErrApprovalMismatch)
	}

	if !decision.Status.IsDecided() {
		return fmt.Errorf("%w: approval %s is %s", ErrApprovalMismatch, decision.ApprovalID, decision.Status)
	}

	if decision.ApprovalID != run.ApprovalID ||
		decision.ExecutionID != run.ExecutionID ||
		decision.NodeID != run.CurrentNodeID {
		return fmt.Errorf("%w: approval %s for %s/%s, run paused on %s/%s with %s", ErrApprovalMismatch,
			decision.ApprovalID, decision.ExecutionID, decision.NodeID,
			run.ExecutionID, run.CurrentNodeID, run.ApprovalID)
	}

	return nil
}

func approvalOutcome(decision *models.ApprovalRecord) map[string]any {
	outcome := map[string]any{
		"approval_id": decision.ApprovalID,
		"status":      string(decision.Status),
		"approved":    decision.Status == models.ApprovalStatusApproved,
		"decided_by":  decision.DecidedBy,
		"comment":     decision.Comment,
	}

	if decision.DecidedAt != nil {
		outcome["decided_at"] = decision.DecidedAt.UTC().Format(time.RFC3339)
	}

	return outcome
}
