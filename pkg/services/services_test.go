package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/eventbus"
	"github.com/dukex/flowgate/pkg/mocks"
	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence/file"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/registry"
	"github.com/dukex/flowgate/pkg/testutil"
	"github.com/dukex/flowgate/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testServices struct {
	graphs    *Graphs
	runs      *Runs
	approvals *Approvals
}

func setupServices(t *testing.T) testServices {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	gate := approval.NewGate(store.ApprovalRepository(), eventbus.Discard, slog.Default())

	nodes := registry.NewRegistry(slog.Default(), protocol.Resources{})
	nodes.RegisterDefaultNodes()

	machine, err := workflow.NewMachine(workflow.Config{
		Persistence: store,
		Executors:   nodes,
		Gate:        gate,
	})
	require.NoError(t, err)

	return testServices{
		graphs:    NewGraphs(store),
		runs:      NewRuns(machine, gate, slog.Default()),
		approvals: NewApprovals(gate),
	}
}

func refundGraph(id string) *models.Graph {
	graph := testutil.CreateLinearGraph(
		testutil.CreateTestNode(testutil.WithID("review"), testutil.WithApproval("Refund {{ .vars.input.amount }}?")),
		testutil.CreateTestNode(testutil.WithID("done"), testutil.WithAssignments(map[string]string{
			"approved_by": "{{ .vars.approval.decided_by }}",
		})),
	)
	graph.ID = id

	return graph
}

func TestGraphs_SaveAndGet(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	graph := refundGraph("")

	saved, err := s.graphs.Save(ctx, "refunds", graph)
	require.NoError(t, err)
	assert.Equal(t, "refunds", saved.ID)

	loaded, err := s.graphs.Get(ctx, "refunds")
	require.NoError(t, err)
	assert.Len(t, loaded.Nodes, 2)
	assert.IsType(t, &models.ApprovalData{}, loaded.Nodes[0].Data)

	message, ok := s.graphs.HealthCheck(ctx)
	assert.True(t, ok, message)
}

func TestGraphs_SaveRejectsInvalidGraphs(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	_, err := s.graphs.Save(ctx, "refunds", nil)
	assert.True(t, IsValidationError(err))

	_, err = s.graphs.Save(ctx, "refunds", refundGraph("other"))
	require.ErrorIs(t, err, ErrGraphIDChanged)
	assert.True(t, IsValidationError(err))

	broken := refundGraph("refunds")
	broken.Edges = append(broken.Edges, testutil.CreateTestEdge("done", "nowhere"))

	_, err = s.graphs.Save(ctx, "refunds", broken)
	assert.True(t, IsValidationError(err))

	_, err = s.graphs.Get(ctx, "refunds")
	assert.True(t, IsNotFoundError(err))
}

func TestRuns_StartValidatesRequest(t *testing.T) {
	s := setupServices(t)

	_, err := s.runs.Start(context.Background(), StartRunRequest{})
	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.True(t, IsValidationError(err))

	_, err = s.runs.Start(context.Background(), StartRunRequest{WorkflowID: "missing"})
	assert.True(t, IsNotFoundError(err))
}

func TestRuns_DecideApproveResumesRun(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	_, err := s.graphs.Save(ctx, "refunds", refundGraph("refunds"))
	require.NoError(t, err)

	run, err := s.runs.Start(ctx, StartRunRequest{
		WorkflowID: "refunds",
		Input:      map[string]any{"amount": 42},
		Advance:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingApproval, run.Status)
	require.NotEmpty(t, run.ApprovalID)

	pending, err := s.approvals.Get(ctx, run.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, "Refund 42?", pending.Message)

	_, err = s.approvals.ResumeData(ctx, run.ApprovalID)
	require.ErrorIs(t, err, approval.ErrPending)
	assert.True(t, IsConflictError(err))

	result, err := s.runs.Decide(ctx, run.ApprovalID, approval.Decision{
		Status:    models.ApprovalStatusApproved,
		DecidedBy: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, result.RunStatus)
	assert.Equal(t, models.ApprovalStatusApproved, result.Approval.Status)

	step, err := s.runs.Advance(ctx, run.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, step.Status)

	final, err := s.runs.Get(ctx, run.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, "alice", final.State.Variables["approved_by"])
	assert.Equal(t, []string{"review", "done"}, final.State.Path)

	_, err = s.runs.Decide(ctx, run.ApprovalID, approval.Decision{Status: models.ApprovalStatusRejected})
	assert.True(t, IsConflictError(err))
}

func TestRuns_DecideRejectFailsRun(t *testing.T) {
	s := setupServices(t)
	ctx := context.Background()

	_, err := s.graphs.Save(ctx, "refunds", refundGraph("refunds"))
	require.NoError(t, err)

	run, err := s.runs.Start(ctx, StartRunRequest{WorkflowID: "refunds", Advance: true})
	require.NoError(t, err)

	result, err := s.runs.Decide(ctx, run.ApprovalID, approval.Decision{Status: models.ApprovalStatusRejected})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, result.RunStatus)

	_, err = s.runs.Cancel(ctx, run.ExecutionID)
	assert.True(t, IsConflictError(err))
}

func TestRuns_DecideMissingApproval(t *testing.T) {
	s := setupServices(t)

	_, err := s.runs.Decide(context.Background(), "nope", approval.Decision{Status: models.ApprovalStatusApproved})
	require.ErrorIs(t, err, approval.ErrInvalidTransition)
	assert.True(t, IsConflictError(err))

	_, err = s.runs.Decide(context.Background(), "nope", approval.Decision{Status: models.ApprovalStatusPending})
	assert.True(t, IsValidationError(err))
}

func TestRuns_RequestApprovalDirectly(t *testing.T) {
	s := setupServices(t)

	record, err := s.approvals.Request(context.Background(), approval.Request{
		ApprovalID:  "manual-1",
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "review",
		Message:     "Ship it?",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, record.Status)
}

func TestGraphs_HealthCheck(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(nil).Once()
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused")).Once()

	graphs := NewGraphs(store)

	message, ok := graphs.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "Persistence layer is healthy", message)

	message, ok = graphs.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Contains(t, message, "connection refused")

	_, ok = NewGraphs(nil).HealthCheck(context.Background())
	assert.False(t, ok)

	store.AssertExpectations(t)
}

func TestGraphs_SaveStorageFailure(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.GetMockGraphRepository().
		On("SaveGraph", mock.Anything, mock.AnythingOfType("*models.Graph")).
		Return(errors.New("disk full")).Once()

	_, err := NewGraphs(store).Save(context.Background(), "refunds", refundGraph("refunds"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, IsValidationError(err))

	store.GetMockGraphRepository().AssertExpectations(t)
}

func TestRuns_StartPersistenceFailure(t *testing.T) {
	store := mocks.NewMockPersistence()
	store.GetMockGraphRepository().
		On("LoadGraph", mock.Anything, "refunds").
		Return(refundGraph("refunds"), nil).Once()
	store.GetMockRunRepository().
		On("SaveRunRecord", mock.Anything, mock.AnythingOfType("*models.RunRecord")).
		Return(errors.New("disk full")).Once()

	gate := approval.NewGate(store.ApprovalRepository(), eventbus.Discard, slog.Default())

	nodes := registry.NewRegistry(slog.Default(), protocol.Resources{})
	nodes.RegisterDefaultNodes()

	machine, err := workflow.NewMachine(workflow.Config{
		Persistence: store,
		Executors:   nodes,
		Gate:        gate,
	})
	require.NoError(t, err)

	_, err = NewRuns(machine, gate, slog.Default()).Start(context.Background(), StartRunRequest{WorkflowID: "refunds"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	store.GetMockRunRepository().AssertNotCalled(t, "PatchRunRecord", mock.Anything, mock.Anything, mock.Anything)
}
