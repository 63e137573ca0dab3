package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/flowgate/pkg/approval"
	"github.com/dukex/flowgate/pkg/events"
	"github.com/dukex/flowgate/pkg/lock"
	"github.com/dukex/flowgate/pkg/mocks"
	"github.com/dukex/flowgate/pkg/models"
	approvalnode "github.com/dukex/flowgate/pkg/nodes/approval"
	"github.com/dukex/flowgate/pkg/nodes/transform"
	"github.com/dukex/flowgate/pkg/persistence/file"
	"github.com/dukex/flowgate/pkg/protocol"
	"github.com/dukex/flowgate/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type executorMap map[models.NodeKind]protocol.Executor

func (m executorMap) Executor(kind models.NodeKind) (protocol.Executor, error) {
	executor, ok := m[kind]
	if !ok {
		return nil, fmt.Errorf("no executor for %s", kind)
	}

	return executor, nil
}

type fixture struct {
	machine   *Machine
	store     *file.Persistence
	gate      *approval.Gate
	locker    *lock.Memory
	publisher *mocks.RecordingPublisher
	executors executorMap
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	publisher := &mocks.RecordingPublisher{}
	locker := lock.NewMemory()
	gate := approval.NewGate(store.ApprovalRepository(), publisher, nil)

	executors := executorMap{
		models.NodeKindTransform: transform.NewTransformExecutor(),
		models.NodeKindApproval:  approvalnode.NewApprovalExecutor(),
		models.NodeKindLog: protocol.ExecutorFunc(func(_ context.Context, request protocol.Request) (*protocol.Result, error) {
			return &protocol.Result{Output: map[string]any{"logged": true}}, nil
		}),
	}

	machine, err := NewMachine(Config{
		Persistence: store,
		Executors:   executors,
		Gate:        gate,
		Locker:      locker,
		Publisher:   publisher,
	})
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		clock = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	)

	machine.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()

		clock = clock.Add(time.Second)

		return clock
	}

	return &fixture{
		machine:   machine,
		store:     store,
		gate:      gate,
		locker:    locker,
		publisher: publisher,
		executors: executors,
	}
}

func (f *fixture) start(t *testing.T, graph *models.Graph, input any) string {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.store.GraphRepository().SaveGraph(ctx, graph))

	executionID, err := f.machine.Start(ctx, graph.ID, input)
	require.NoError(t, err)

	return executionID
}

func (f *fixture) run(t *testing.T, executionID string) *models.RunRecord {
	t.Helper()

	run, err := f.machine.Status(context.Background(), executionID)
	require.NoError(t, err)

	return run
}

func reviewGraph() *models.Graph {
	return testutil.CreateLinearGraph(
		testutil.CreateTestNode(testutil.WithID("prepare"), testutil.WithAssignments(map[string]string{
			"amount": "{{ .vars.input.amount }}",
		})),
		testutil.CreateTestNode(testutil.WithID("review"), testutil.WithApproval("Refund {{ .vars.amount }}?")),
		testutil.CreateTestNode(testutil.WithID("notify")),
	)
}

func TestMachine_StartPositionsRunOnEntryNode(t *testing.T) {
	f := newFixture(t)

	graph := reviewGraph()
	executionID := f.start(t, graph, map[string]any{"amount": 10})

	assert.Regexp(t, `^exec-`, executionID)

	run := f.run(t, executionID)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Equal(t, "prepare", run.CurrentNodeID)
	assert.Equal(t, graph.ID, run.WorkflowID)
	assert.Empty(t, run.State.Path)
	assert.Equal(t, map[string]any{"amount": float64(10)}, run.State.Variables[models.VariableInput])
	assert.Equal(t, []events.EventType{events.RunStartedEvent}, f.publisher.Types())
}

func TestMachine_StartRejectsInvalidGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	graph := testutil.CreateLinearGraph(testutil.CreateTestNode(testutil.WithID("a")))
	graph.Edges = append(graph.Edges, testutil.CreateTestEdge("a", "missing"))
	require.NoError(t, f.store.GraphRepository().SaveGraph(ctx, graph))

	_, err := f.machine.Start(ctx, graph.ID, nil)
	require.ErrorIs(t, err, ErrInvalidGraph)
	assert.Empty(t, f.publisher.Types())
}

func TestMachine_StartUnknownWorkflow(t *testing.T) {
	f := newFixture(t)

	_, err := f.machine.Start(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestMachine_AdvanceCompletesLinearGraph(t *testing.T) {
	f := newFixture(t)

	graph := testutil.CreateLinearGraph(
		testutil.CreateTestNode(testutil.WithID("a"), testutil.WithAssignments(map[string]string{"greeting": "hello"})),
		testutil.CreateTestNode(testutil.WithID("b")),
	)
	executionID := f.start(t, graph, nil)

	result, err := f.machine.Advance(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, result.Status)

	run := f.run(t, executionID)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Equal(t, []string{"a", "b"}, run.State.Path)
	assert.Equal(t, "hello", run.State.Variables["greeting"])
	assert.Len(t, run.State.NodeResults, 2)
	assert.Contains(t, run.State.NodeResults, "a")
	assert.Contains(t, run.State.NodeResults, "b")

	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.RunNodeCompletedEvent,
		events.RunNodeCompletedEvent,
		events.RunCompletedEvent,
	}, f.publisher.Types())

	_, err = f.machine.Step(context.Background(), executionID)
	require.ErrorIs(t, err, ErrRunNotRunning)
}

func TestMachine_StepFollowsOneEdge(t *testing.T) {
	f := newFixture(t)

	graph := testutil.CreateLinearGraph(
		testutil.CreateTestNode(testutil.WithID("a")),
		testutil.CreateTestNode(testutil.WithID("b")),
	)
	executionID := f.start(t, graph, nil)

	result, err := f.machine.Step(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, StepResult{Status: models.RunStatusRunning, NextNodeID: "b"}, result)

	run := f.run(t, executionID)
	assert.Equal(t, "b", run.CurrentNodeID)
	assert.Equal(t, []string{"a"}, run.State.Path)
}

func TestMachine_BranchSelection(t *testing.T) {
	tests := []struct {
		name  string
		edges []*models.Edge
		want  string
	}{
		{
			name: "first true conditional edge wins",
			edges: []*models.Edge{
				testutil.CreateConditionalEdge("route", "left", `{{ eq .vars.side "left" }}`),
				testutil.CreateConditionalEdge("route", "right", `{{ eq .vars.side "right" }}`),
				testutil.CreateConditionalEdge("route", "other", "true"),
			},
			want: "right",
		},
		{
			name: "conditional edge beats earlier unconditional edge",
			edges: []*models.Edge{
				testutil.CreateTestEdge("route", "left"),
				testutil.CreateConditionalEdge("route", "right", `{{ eq .vars.side "right" }}`),
			},
			want: "right",
		},
		{
			name: "unconditional edge when no condition holds",
			edges: []*models.Edge{
				testutil.CreateConditionalEdge("route", "right", `{{ eq .vars.side "left" }}`),
				testutil.CreateTestEdge("route", "other"),
				testutil.CreateTestEdge("route", "left"),
			},
			want: "other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			graph := testutil.CreateTestGraph(
				testutil.WithNodes(
					testutil.CreateTestNode(testutil.WithID("route"), testutil.WithAssignments(map[string]string{"side": "right"})),
					testutil.CreateTestNode(testutil.WithID("left")),
					testutil.CreateTestNode(testutil.WithID("right")),
					testutil.CreateTestNode(testutil.WithID("other")),
				),
				testutil.WithEdges(tt.edges...),
			)
			executionID := f.start(t, graph, nil)

			result, err := f.machine.Step(context.Background(), executionID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.NextNodeID)

			result, err = f.machine.Advance(context.Background(), executionID)
			require.NoError(t, err)
			assert.Equal(t, models.RunStatusCompleted, result.Status)
			assert.Equal(t, []string{"route", tt.want}, f.run(t, executionID).State.Path)
		})
	}
}

func TestMachine_BranchSelectionIsDeterministic(t *testing.T) {
	f := newFixture(t)

	graph := testutil.CreateTestGraph(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithID("route"), testutil.WithAssignments(map[string]string{"side": "right"})),
			testutil.CreateTestNode(testutil.WithID("left")),
			testutil.CreateTestNode(testutil.WithID("right")),
			testutil.CreateTestNode(testutil.WithID("other")),
		),
		testutil.WithEdges(
			testutil.CreateConditionalEdge("route", "left", `{{ eq .vars.side "left" }}`),
			testutil.CreateConditionalEdge("route", "right", `{{ eq .vars.side "right" }}`),
			testutil.CreateConditionalEdge("route", "other", "true"),
		),
	)
	require.NoError(t, f.store.GraphRepository().SaveGraph(context.Background(), graph))

	for range 20 {
		executionID, err := f.machine.Start(context.Background(), graph.ID, nil)
		require.NoError(t, err)

		result, err := f.machine.Step(context.Background(), executionID)
		require.NoError(t, err)
		assert.Equal(t, "right", result.NextNodeID)
	}
}

func TestMachine_UnreachableBranchFailsRun(t *testing.T) {
	f := newFixture(t)

	graph := testutil.CreateTestGraph(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithID("route")),
			testutil.CreateTestNode(testutil.WithID("left")),
		),
		testutil.WithEdges(testutil.CreateConditionalEdge("route", "left", "false")),
	)
	executionID := f.start(t, graph, nil)

	result, err := f.machine.Step(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, ErrUnreachableBranch.Error())

	run := f.run(t, executionID)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, []string{"route"}, run.State.Path)
	assert.Contains(t, f.publisher.Types(), events.RunFailedEvent)
}

func TestMachine_CycleFailsRun(t *testing.T) {
	f := newFixture(t)

	graph := testutil.CreateTestGraph(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithID("start")),
			testutil.CreateTestNode(testutil.WithID("a")),
			testutil.CreateTestNode(testutil.WithID("b")),
		),
		testutil.WithEdges(
			testutil.CreateTestEdge("start", "a"),
			testutil.CreateTestEdge("a", "b"),
			testutil.CreateTestEdge("b", "a"),
		),
	)
	executionID := f.start(t, graph, nil)

	result, err := f.machine.Advance(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, ErrCycleDetected.Error())

	run := f.run(t, executionID)
	assert.Equal(t, []string{"start", "a", "b"}, run.State.Path)
	assert.Len(t, run.State.NodeResults, 3)
}

func TestMachine_NodeFailureFailsRun(t *testing.T) {
	f := newFixture(t)
	f.executors[models.NodeKindLog] = protocol.ExecutorFunc(func(context.Context, protocol.Request) (*protocol.Result, error) {
		return nil, errors.New("boom")
	})

	executionID := f.start(t, testutil.CreateLinearGraph(testutil.CreateTestNode(testutil.WithID("a"))), nil)

	result, err := f.machine.Step(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, StepResult{Status: models.RunStatusFailed, Error: "boom"}, result)

	run := f.run(t, executionID)
	assert.Equal(t, "boom", run.Error)
	assert.NotNil(t, run.CompletedAt)
	assert.Empty(t, run.State.Path)
}

func TestMachine_PanickingNodeFailsRun(t *testing.T) {
	f := newFixture(t)
	f.executors[models.NodeKindLog] = protocol.ExecutorFunc(func(context.Context, protocol.Request) (*protocol.Result, error) {
		panic("kaboom")
	})

	executionID := f.start(t, testutil.CreateLinearGraph(testutil.CreateTestNode(testutil.WithID("a"))), nil)

	result, err := f.machine.Step(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, "kaboom")
	assert.False(t, f.locker.Held(runLockKey(executionID)))
}

func TestMachine_ExecutorCannotMutateState(t *testing.T) {
	f := newFixture(t)
	f.executors[models.NodeKindLog] = protocol.ExecutorFunc(func(_ context.Context, request protocol.Request) (*protocol.Result, error) {
		request.State.Variables["leaked"] = true
		request.State.Path = append(request.State.Path, "bogus")

		return &protocol.Result{Output: "ok"}, nil
	})

	executionID := f.start(t, testutil.CreateLinearGraph(testutil.CreateTestNode(testutil.WithID("a"))), nil)

	_, err := f.machine.Advance(context.Background(), executionID)
	require.NoError(t, err)

	run := f.run(t, executionID)
	assert.NotContains(t, run.State.Variables, "leaked")
	assert.Equal(t, []string{"a"}, run.State.Path)
}

func TestMachine_StepOnBusyRunFailsFast(t *testing.T) {
	f := newFixture(t)

	executionID := f.start(t, testutil.CreateLinearGraph(testutil.CreateTestNode(testutil.WithID("a"))), nil)

	held, err := f.locker.TryLock(context.Background(), runLockKey(executionID))
	require.NoError(t, err)

	_, err = f.machine.Step(context.Background(), executionID)
	require.ErrorIs(t, err, ErrRunBusy)
	assert.True(t, IsRunBusy(err))
	assert.Empty(t, f.run(t, executionID).State.Path)

	require.NoError(t, held.Unlock(context.Background()))

	result, err := f.machine.Step(context.Background(), executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
}

func TestMachine_ConcurrentStepsExecuteNodeOnce(t *testing.T) {
	f := newFixture(t)

	var calls atomic.Int32

	release := make(chan struct{})
	f.executors[models.NodeKindLog] = protocol.ExecutorFunc(func(context.Context, protocol.Request) (*protocol.Result, error) {
		calls.Add(1)
		<-release

		return &protocol.Result{}, nil
	})

	executionID := f.start(t, testutil.CreateLinearGraph(testutil.CreateTestNode(testutil.WithID("a"))), nil)

	done := make(chan error, 1)

	go func() {
		_, err := f.machine.Step(context.Background(), executionID)
		done <- err
	}()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	const contenders = 4

	var busy atomic.Int32

	var wg sync.WaitGroup

	for range contenders {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := f.machine.Step(context.Background(), executionID); IsRunBusy(err) {
				busy.Add(1)
			}
		}()
	}

	wg.Wait()
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(contenders), busy.Load())
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []string{"a"}, f.run(t, executionID).State.Path)
}

func TestMachine_ApprovalPauseAndApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	executionID := f.start(t, reviewGraph(), map[string]any{"amount": 10})

	result, err := f.machine.Advance(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingApproval, result.Status)

	approvalID := approvalnode.DefaultApprovalID(executionID, "review")

	run := f.run(t, executionID)
	assert.Equal(t, models.RunStatusWaitingApproval, run.Status)
	assert.Equal(t, "review", run.CurrentNodeID)
	assert.Equal(t, approvalID, run.ApprovalID)
	assert.Equal(t, []string{"prepare"}, run.State.Path)

	record, err := f.gate.GetDecision(ctx, approvalID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusPending, record.Status)
	assert.Equal(t, "Refund 10?", record.Message)

	_, err = f.machine.Step(ctx, executionID)
	require.ErrorIs(t, err, ErrRunNotRunning)

	_, err = f.gate.SubmitDecision(ctx, approvalID, approval.Decision{
		Status:    models.ApprovalStatusApproved,
		DecidedBy: "alice",
		Comment:   "ok",
	})
	require.NoError(t, err)

	decided, err := f.gate.GetResumeData(ctx, approvalID)
	require.NoError(t, err)

	status, err := f.machine.Resume(ctx, executionID, decided)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, status)

	run = f.run(t, executionID)
	assert.Equal(t, "notify", run.CurrentNodeID)
	assert.Empty(t, run.ApprovalID)

	outcome, ok := run.State.Variables[models.VariableApproval].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, outcome["approved"])
	assert.Equal(t, "alice", outcome["decided_by"])
	assert.Equal(t, "ok", outcome["comment"])
	assert.Contains(t, run.State.NodeResults, "review")

	result, err = f.machine.Advance(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Equal(t, []string{"prepare", "review", "notify"}, f.run(t, executionID).State.Path)

	types := f.publisher.Types()
	assert.Contains(t, types, events.ApprovalRequestedEvent)
	assert.Contains(t, types, events.RunPausedEvent)
	assert.Contains(t, types, events.ApprovalDecidedEvent)
	assert.Contains(t, types, events.RunResumedEvent)
	assert.Equal(t, events.RunCompletedEvent, types[len(types)-1])
}

func TestMachine_ApprovalRejectedFailsRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	executionID := f.start(t, reviewGraph(), map[string]any{"amount": 10})

	_, err := f.machine.Advance(ctx, executionID)
	require.NoError(t, err)

	approvalID := approvalnode.DefaultApprovalID(executionID, "review")

	decided, err := f.gate.SubmitDecision(ctx, approvalID, approval.Decision{
		Status:    models.ApprovalStatusRejected,
		DecidedBy: "bob",
	})
	require.NoError(t, err)

	status, err := f.machine.Resume(ctx, executionID, decided)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, status)

	run := f.run(t, executionID)
	assert.Equal(t, "approval "+approvalID+" rejected", run.Error)
	assert.Equal(t, []string{"prepare"}, run.State.Path)
}

func TestMachine_ResumeRejectsMismatchedDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	executionID := f.start(t, reviewGraph(), map[string]any{"amount": 10})

	_, err := f.machine.Advance(ctx, executionID)
	require.NoError(t, err)

	approvalID := approvalnode.DefaultApprovalID(executionID, "review")
	pending, err := f.gate.GetDecision(ctx, approvalID)
	require.NoError(t, err)

	_, err = f.machine.Resume(ctx, executionID, pending)
	require.ErrorIs(t, err, ErrApprovalMismatch)

	decided, err := f.gate.SubmitDecision(ctx, approvalID, approval.Decision{Status: models.ApprovalStatusApproved})
	require.NoError(t, err)

	other := *decided
	other.NodeID = "prepare"

	_, err = f.machine.Resume(ctx, executionID, &other)
	require.ErrorIs(t, err, ErrApprovalMismatch)

	_, err = f.machine.Resume(ctx, executionID, nil)
	require.ErrorIs(t, err, ErrApprovalMismatch)

	assert.Equal(t, models.RunStatusWaitingApproval, f.run(t, executionID).Status)

	status, err := f.machine.Resume(ctx, executionID, decided)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, status)

	_, err = f.machine.Resume(ctx, executionID, decided)
	require.ErrorIs(t, err, ErrRunNotWaiting)
}

func TestMachine_SharedApprovalIDFailsSecondRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	graph := testutil.CreateLinearGraph(
		testutil.CreateTestNode(testutil.WithID("review"), testutil.WithData(&models.ApprovalData{
			Message:    "Deploy?",
			ApprovalID: "deploy",
		})),
		testutil.CreateTestNode(testutil.WithID("notify")),
	)

	first := f.start(t, graph, nil)
	second := f.start(t, graph, nil)

	result, err := f.machine.Advance(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaitingApproval, result.Status)

	result, err = f.machine.Advance(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, result.Status)
	assert.Contains(t, result.Error, approval.ErrInvalidTransition.Error())

	run := f.run(t, second)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Empty(t, run.ApprovalID)
	require.NotNil(t, run.CompletedAt)

	record, err := f.gate.GetDecision(ctx, "deploy")
	require.NoError(t, err)
	assert.Equal(t, first, record.ExecutionID)

	_, err = f.gate.SubmitDecision(ctx, "deploy", approval.Decision{Status: models.ApprovalStatusApproved})
	require.NoError(t, err)

	decided, err := f.gate.GetResumeData(ctx, "deploy")
	require.NoError(t, err)

	status, err := f.machine.Resume(ctx, first, decided)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, status)
}

func TestMachine_ResumeKeepsStateFromBeforePause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.executors[models.NodeKindLog] = protocol.ExecutorFunc(func(_ context.Context, request protocol.Request) (*protocol.Result, error) {
		return &protocol.Result{
			Variables: map[string]any{"greeted_" + request.Node.ID: true},
			Output:    "hello",
			Messages: []models.ChatMessage{
				{Role: models.ChatRoleUser, Content: "hi from " + request.Node.ID, NodeID: request.Node.ID},
				{Role: models.ChatRoleAssistant, Content: "hello", NodeID: request.Node.ID},
			},
		}, nil
	})

	graph := testutil.CreateLinearGraph(
		testutil.CreateTestNode(testutil.WithID("greet")),
		testutil.CreateTestNode(testutil.WithID("prepare"), testutil.WithAssignments(map[string]string{
			"amount": "{{ .vars.input.amount }}",
		})),
		testutil.CreateTestNode(testutil.WithID("review"), testutil.WithApproval("Refund {{ .vars.amount }}?")),
		testutil.CreateTestNode(testutil.WithID("notify")),
	)
	executionID := f.start(t, graph, map[string]any{"amount": 25})

	result, err := f.machine.Advance(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusWaitingApproval, result.Status)

	paused := f.run(t, executionID).State
	require.Len(t, paused.ChatHistory, 2)
	require.Contains(t, paused.Variables, "greeted_greet")
	require.Contains(t, paused.Variables, "amount")

	approvalID := approvalnode.DefaultApprovalID(executionID, "review")

	_, err = f.gate.SubmitDecision(ctx, approvalID, approval.Decision{Status: models.ApprovalStatusApproved, DecidedBy: "alice"})
	require.NoError(t, err)

	decided, err := f.gate.GetResumeData(ctx, approvalID)
	require.NoError(t, err)

	_, err = f.machine.Resume(ctx, executionID, decided)
	require.NoError(t, err)

	resumed := f.run(t, executionID).State
	assert.Equal(t, paused.ChatHistory, resumed.ChatHistory)

	for key, value := range paused.Variables {
		assert.Equal(t, value, resumed.Variables[key], key)
	}

	assert.Contains(t, resumed.Variables, models.VariableApproval)

	_, err = f.machine.Advance(ctx, executionID)
	require.NoError(t, err)

	final := f.run(t, executionID).State
	require.Len(t, final.ChatHistory, 4)
	assert.Equal(t, paused.ChatHistory, final.ChatHistory[:2])
	assert.Equal(t, "notify", final.ChatHistory[2].NodeID)
}

func TestMachine_CancelIdleRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	executionID := f.start(t, reviewGraph(), map[string]any{"amount": 10})

	_, err := f.machine.Advance(ctx, executionID)
	require.NoError(t, err)

	status, err := f.machine.Cancel(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, status)

	run := f.run(t, executionID)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.NotNil(t, run.CompletedAt)
	assert.Contains(t, f.publisher.Types(), events.RunCancelledEvent)

	_, err = f.machine.Cancel(ctx, executionID)
	require.ErrorIs(t, err, ErrRunNotRunning)
}

func TestMachine_CancelInFlightRunStopsAtNextStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	graph := testutil.CreateLinearGraph(
		testutil.CreateTestNode(testutil.WithID("a")),
		testutil.CreateTestNode(testutil.WithID("b")),
	)
	executionID := f.start(t, graph, nil)

	held, err := f.locker.TryLock(ctx, runLockKey(executionID))
	require.NoError(t, err)

	status, err := f.machine.Cancel(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, status)
	assert.True(t, f.run(t, executionID).CancelRequested)

	require.NoError(t, held.Unlock(ctx))

	result, err := f.machine.Advance(ctx, executionID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, result.Status)
	assert.Empty(t, f.run(t, executionID).State.Path)
}

func TestNewMachine_RequiresCollaborators(t *testing.T) {
	_, err := NewMachine(Config{})
	require.Error(t, err)
}
