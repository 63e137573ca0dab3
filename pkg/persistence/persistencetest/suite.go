// Package persistencetest holds the behaviour every persistence implementation must share.
package persistencetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowgate/pkg/models"
	"github.com/dukex/flowgate/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run executes the repository contract tests against the persistence returned by factory.
// factory is called once per subtest and must return an empty store.
func Run(t *testing.T, factory func(t *testing.T) persistence.Persistence) {
	t.Helper()

	t.Run("graph round trip", func(t *testing.T) { testGraphRoundTrip(t, factory(t)) })
	t.Run("missing graph", func(t *testing.T) { testMissingGraph(t, factory(t)) })
	t.Run("run save and patch", func(t *testing.T) { testRunSaveAndPatch(t, factory(t)) })
	t.Run("missing run", func(t *testing.T) { testMissingRun(t, factory(t)) })
	t.Run("approval upsert preserves pending", func(t *testing.T) { testApprovalUpsert(t, factory(t)) })
	t.Run("approval decide once", func(t *testing.T) { testApprovalDecide(t, factory(t)) })
	t.Run("concurrent decisions", func(t *testing.T) { testConcurrentDecisions(t, factory(t)) })
	t.Run("health check", func(t *testing.T) {
		require.NoError(t, factory(t).HealthCheck(context.Background()))
	})
}

// SampleGraph returns a three-node graph with a conditional branch.
func SampleGraph(id string) *models.Graph {
	return &models.Graph{
		ID:   id,
		Name: "Sample",
		Nodes: []*models.Node{
			models.NewNode("classify", &models.ExtractionData{
				Model:        "openai/gpt-4o-mini",
				Instructions: "Classify",
				OutputSchema: map[string]any{"type": "object"},
			}),
			models.NewNode("review", &models.ApprovalData{Message: "Approve?"}),
			models.NewNode("done", &models.LogData{Message: "done", Level: "info"}),
		},
		Edges: []*models.Edge{
			{
				Source:    "classify",
				Target:    "review",
				Condition: &models.ConditionalExpression{Language: "simple", Expression: "{{ .variables.lastOutput.urgent }}"},
			},
			{Source: "classify", Target: "done"},
			{Source: "review", Target: "done"},
		},
	}
}

func testGraphRoundTrip(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	graph := SampleGraph("wf-1")

	require.NoError(t, store.GraphRepository().SaveGraph(ctx, graph))

	loaded, err := store.GraphRepository().LoadGraph(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, graph, loaded)

	graph.Name = "Renamed"
	require.NoError(t, store.GraphRepository().SaveGraph(ctx, graph))

	loaded, err = store.GraphRepository().LoadGraph(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Name)
}

func testMissingGraph(t *testing.T, store persistence.Persistence) {
	_, err := store.GraphRepository().LoadGraph(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func newRun(id string) *models.RunRecord {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	state := models.NewExecutionState(map[string]any{"ticket": "T-1"})

	return &models.RunRecord{
		ExecutionID:   id,
		WorkflowID:    "wf-1",
		Status:        models.RunStatusRunning,
		CurrentNodeID: "classify",
		StartedAt:     started,
		UpdatedAt:     started,
		State:         state,
	}
}

func testRunSaveAndPatch(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	runs := store.RunRepository()

	require.NoError(t, runs.SaveRunRecord(ctx, newRun("exec-1")))

	record, err := runs.RunRecord(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, record.Status)
	assert.Equal(t, "classify", record.CurrentNodeID)
	assert.Equal(t, map[string]any{"ticket": "T-1"}, record.State.Variables[models.VariableInput])

	state := record.State.Clone()
	state.Merge("classify", map[string]any{"lastOutput": "x"}, "x", nil)

	status := models.RunStatusWaitingApproval
	approvalID := "exec-1:review"
	next := "review"
	updated := record.StartedAt.Add(time.Second)

	patched, err := runs.PatchRunRecord(ctx, "exec-1", models.RunPatch{
		Status:        &status,
		ApprovalID:    &approvalID,
		CurrentNodeID: &next,
		State:         &state,
		UpdatedAt:     updated,
	})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingApproval, patched.Status)

	cancel := true
	_, err = runs.PatchRunRecord(ctx, "exec-1", models.RunPatch{CancelRequested: &cancel})
	require.NoError(t, err)

	record, err = runs.RunRecord(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingApproval, record.Status)
	assert.Equal(t, "review", record.CurrentNodeID)
	assert.Equal(t, "exec-1:review", record.ApprovalID)
	assert.True(t, record.CancelRequested)
	assert.Equal(t, []string{"classify"}, record.State.Path)
	assert.Equal(t, "x", record.State.NodeResults["classify"])
	assert.True(t, updated.Equal(record.UpdatedAt))
	assert.Nil(t, record.CompletedAt)
}

func testMissingRun(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	_, err := store.RunRepository().RunRecord(ctx, "missing")
	assert.True(t, persistence.IsRunNotFound(err))

	status := models.RunStatusFailed
	_, err = store.RunRepository().PatchRunRecord(ctx, "missing", models.RunPatch{Status: &status})
	assert.True(t, persistence.IsRunNotFound(err))
}

func pendingRequest(message string, at time.Time) *models.ApprovalRecord {
	return &models.ApprovalRecord{
		ApprovalID:  "exec-1:review",
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
		NodeID:      "review",
		Message:     message,
		UserID:      "u-1",
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func testApprovalUpsert(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	approvals := store.ApprovalRepository()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := approvals.Approval(ctx, "exec-1:review")
	assert.True(t, persistence.IsApprovalNotFound(err))

	created, isNew, err := approvals.UpsertApproval(ctx, pendingRequest("first", first))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, models.ApprovalStatusPending, created.Status)

	second := pendingRequest("second", first.Add(time.Minute))
	second.WorkflowID = "ignored"

	merged, isNew, err := approvals.UpsertApproval(ctx, second)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, "second", merged.Message)
	assert.Equal(t, "wf-1", merged.WorkflowID)

	otherRun := pendingRequest("other run", first.Add(2*time.Minute))
	otherRun.ExecutionID = "exec-2"

	_, _, err = approvals.UpsertApproval(ctx, otherRun)
	require.Error(t, err)
	assert.True(t, persistence.IsApprovalOwned(err))

	otherNode := pendingRequest("other node", first.Add(2*time.Minute))
	otherNode.NodeID = "audit"

	_, _, err = approvals.UpsertApproval(ctx, otherNode)
	require.Error(t, err)
	assert.True(t, persistence.IsApprovalOwned(err))

	stored, err := approvals.Approval(ctx, "exec-1:review")
	require.NoError(t, err)
	assert.Equal(t, "second", stored.Message)
	assert.Equal(t, models.ApprovalStatusPending, stored.Status)
	assert.True(t, first.Equal(stored.CreatedAt))
	assert.True(t, first.Add(time.Minute).Equal(stored.UpdatedAt))
}

func testApprovalDecide(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	approvals := store.ApprovalRepository()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := approvals.DecideApproval(ctx, "exec-1:review", persistence.Decision{Status: models.ApprovalStatusApproved, At: at})
	assert.True(t, persistence.IsApprovalNotFound(err))

	_, _, err = approvals.UpsertApproval(ctx, pendingRequest("ok?", at))
	require.NoError(t, err)

	decided, err := approvals.DecideApproval(ctx, "exec-1:review", persistence.Decision{
		Status:    models.ApprovalStatusApproved,
		DecidedBy: "alice",
		Comment:   "fine",
		At:        at.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, decided.Status)

	_, err = approvals.DecideApproval(ctx, "exec-1:review", persistence.Decision{Status: models.ApprovalStatusRejected, At: at})
	assert.True(t, persistence.IsApprovalDecided(err))

	_, _, err = approvals.UpsertApproval(ctx, pendingRequest("again", at))
	assert.True(t, persistence.IsApprovalDecided(err))

	stored, err := approvals.Approval(ctx, "exec-1:review")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, stored.Status)
	assert.Equal(t, "alice", stored.DecidedBy)
	assert.Equal(t, "fine", stored.Comment)
	assert.Equal(t, "ok?", stored.Message)
	require.NotNil(t, stored.DecidedAt)
	assert.True(t, at.Add(time.Hour).Equal(*stored.DecidedAt))
}

func testConcurrentDecisions(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	approvals := store.ApprovalRepository()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _, err := approvals.UpsertApproval(ctx, pendingRequest("race", at))
	require.NoError(t, err)

	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)

	for i := range workers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			status := models.ApprovalStatusApproved
			if i%2 == 1 {
				status = models.ApprovalStatusRejected
			}

			_, err := approvals.DecideApproval(ctx, "exec-1:review", persistence.Decision{Status: status, At: at})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded, "exactly one decision wins")
}
