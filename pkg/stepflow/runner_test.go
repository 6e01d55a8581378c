package stepflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepflow/stepflow/pkg/stepflow/store"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// recordingHandler returns a handler that logs step ids in dispatch
// order and echoes a per-step output.
func recordingHandler(mu *sync.Mutex, order *[]string) Handler {
	return func(ctx context.Context, step Step, input map[string]any) (*trace.Result, error) {
		mu.Lock()
		*order = append(*order, step.ID)
		mu.Unlock()
		return &trace.Result{Output: "out-" + step.ID}, nil
	}
}

func TestRunner_RejectsInvalidFlow(t *testing.T) {
	flow := flowOf(
		step("a", []string{"b"}),
		step("b", []string{"a"}),
	)

	_, err := NewRunner(flow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFlowInvalid)
}

func TestRunner_RunsInDependencyOrder(t *testing.T) {
	flow := flowOf(
		step("A", []string{}),
		step("B", []string{"A"}),
		step("C", []string{"A"}),
		step("D", []string{"B", "C"}),
	)

	var (
		mu    sync.Mutex
		order []string
	)
	runner, err := NewRunner(flow, WithHandler(StepChat, recordingHandler(&mu, &order)))
	require.NoError(t, err)

	execution, runErr := runner.Run(context.Background(), nil)
	require.NoError(t, runErr)

	require.Len(t, order, 4)
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["A"], pos["B"])
	assert.Less(t, pos["A"], pos["C"])
	assert.Less(t, pos["B"], pos["D"])
	assert.Less(t, pos["C"], pos["D"])

	assert.Equal(t, trace.StatusSuccess, execution.Status)
	for _, id := range []string{"A", "B", "C", "D"} {
		require.NotNil(t, execution.Step(id), id)
		assert.Equal(t, trace.StatusSuccess, execution.Step(id).Status, id)
	}
	assert.True(t, IsTerminal(flow, execution))
}

func TestRunner_InputsCarryDependencyOutputs(t *testing.T) {
	flow := flowOf(
		step("A", []string{}),
		step("B", []string{"A"}),
	)

	var got map[string]any
	handler := func(ctx context.Context, s Step, input map[string]any) (*trace.Result, error) {
		if s.ID == "B" {
			got = input
		}
		return &trace.Result{Output: "out-" + s.ID}, nil
	}

	runner, err := NewRunner(flow, WithHandler(StepChat, handler))
	require.NoError(t, err)

	initial := map[string]any{"topic": "dependency graphs"}
	execution, runErr := runner.Run(context.Background(), initial)
	require.NoError(t, runErr)

	// Roots see the initial input; dependents see a dep-id-keyed map.
	assert.Equal(t, initial, execution.Step("A").Input)
	assert.Equal(t, map[string]any{"A": "out-A"}, got)
}

func TestRunner_FailureSkipsDependents(t *testing.T) {
	flow := flowOf(
		step("A", []string{}),
		step("B", []string{"A"}),
		step("C", []string{"B"}),
		step("side", []string{"A"}),
	)

	boom := errors.New("B exploded")
	handler := func(ctx context.Context, s Step, input map[string]any) (*trace.Result, error) {
		if s.ID == "B" {
			return nil, boom
		}
		return &trace.Result{Output: "out-" + s.ID}, nil
	}

	runner, err := NewRunner(flow, WithHandler(StepChat, handler))
	require.NoError(t, err)

	execution, runErr := runner.Run(context.Background(), nil)
	require.Error(t, runErr)

	var stepErr *StepError
	require.ErrorAs(t, runErr, &stepErr)
	assert.Equal(t, "B", stepErr.StepID)
	assert.ErrorIs(t, runErr, boom)

	assert.Equal(t, trace.StatusError, execution.Status)
	assert.Equal(t, trace.StatusSuccess, execution.Step("A").Status)
	assert.Equal(t, trace.StatusError, execution.Step("B").Status)
	assert.Nil(t, execution.Step("C"), "dependents of a failed step never start")
	assert.Equal(t, trace.StatusSuccess, execution.Step("side").Status,
		"independent branches keep running")

	assert.True(t, IsTerminal(flow, execution))
}

func TestRunner_ParallelSiblingsAllSettle(t *testing.T) {
	a := step("A", []string{})
	p1 := step("p1", []string{"A"})
	p2 := step("p2", []string{"A"})
	p3 := step("p3", []string{"A"})
	p1.Parallel, p2.Parallel, p3.Parallel = true, true, true
	flow := flowOf(a, p1, p2, p3, step("join", []string{"p1", "p2", "p3"}))

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	handler := func(ctx context.Context, s Step, input map[string]any) (*trace.Result, error) {
		if s.ID == "p2" {
			return nil, errors.New("p2 failed")
		}
		mu.Lock()
		running++
		if running > peak {
			peak = running
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return &trace.Result{Output: "out-" + s.ID}, nil
	}

	runner, err := NewRunner(flow, WithHandler(StepChat, handler))
	require.NoError(t, err)

	execution, runErr := runner.Run(context.Background(), nil)
	require.Error(t, runErr)

	// One sibling failing does not lose the others' results.
	assert.Equal(t, trace.StatusSuccess, execution.Step("p1").Status)
	assert.Equal(t, trace.StatusError, execution.Step("p2").Status)
	assert.Equal(t, trace.StatusSuccess, execution.Step("p3").Status)
	assert.Nil(t, execution.Step("join"), "the join step waits for all three")

	mu.Lock()
	assert.GreaterOrEqual(t, peak, 2, "siblings sharing a dependency set run concurrently")
	mu.Unlock()
}

func TestRunner_NoHandlerForType(t *testing.T) {
	flow := flowOf(step("A", []string{}))

	runner, err := NewRunner(flow)
	require.NoError(t, err)

	execution, runErr := runner.Run(context.Background(), nil)
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, ErrNoHandler)
	assert.Equal(t, trace.StatusError, execution.Step("A").Status)
}

func TestRunner_MirrorsIntoStore(t *testing.T) {
	flow := flowOf(
		step("A", []string{}),
		step("B", []string{"A"}),
	)

	st := store.New()
	var (
		mu    sync.Mutex
		order []string
	)
	runner, err := NewRunner(flow,
		WithHandler(StepChat, recordingHandler(&mu, &order)),
		WithSink(st),
	)
	require.NoError(t, err)

	execution, runErr := runner.Run(context.Background(), nil)
	require.NoError(t, runErr)

	live := st.Execution(flow.ID)
	require.NotNil(t, live)
	assert.Equal(t, execution.ID, live.ID)
	assert.Equal(t, trace.StatusSuccess, live.Status)
	assert.Equal(t, trace.StatusSuccess, live.Step("B").Status)

	hist := st.History(flow.ID)
	require.Len(t, hist, 1)
	assert.Equal(t, execution.ID, hist[0].ID)
}

func TestRunner_ContextCancellation(t *testing.T) {
	flow := flowOf(
		step("A", []string{}),
		step("B", []string{"A"}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	handler := func(hctx context.Context, s Step, input map[string]any) (*trace.Result, error) {
		if s.ID == "A" {
			cancel()
		}
		return &trace.Result{Output: "out-" + s.ID}, nil
	}

	runner, err := NewRunner(flow, WithHandler(StepChat, handler))
	require.NoError(t, err)

	execution, runErr := runner.Run(ctx, nil)
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, context.Canceled)
	assert.Nil(t, execution.Step("B"), "no new steps start after cancellation")
	assert.Equal(t, trace.StatusError, execution.Status)
}

func TestGroupBatches(t *testing.T) {
	seq := step("seq", []string{"A"})
	p1 := step("p1", []string{"A", "B"})
	p2 := step("p2", []string{"B", "A"})
	p3 := step("p3", []string{"C"})
	p1.Parallel, p2.Parallel, p3.Parallel = true, true, true

	batches := groupBatches([]Step{seq, p1, p2, p3})

	require.Len(t, batches, 3)
	assert.Equal(t, []string{"seq"}, stepIDs(batches[0]))
	assert.Equal(t, []string{"p1", "p2"}, stepIDs(batches[1]),
		"dependency sets match regardless of declaration order")
	assert.Equal(t, []string{"p3"}, stepIDs(batches[2]))
}

func stepIDs(steps []Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	return ids
}

func TestIsTerminal(t *testing.T) {
	flow := flowOf(
		step("A", []string{}),
		step("B", []string{"A"}),
	)

	assert.False(t, IsTerminal(flow, nil))

	ex := &trace.FlowExecution{Steps: map[string]*trace.StepExecution{}}
	assert.False(t, IsTerminal(flow, ex), "an untouched root is startable")

	ex.Steps["A"] = &trace.StepExecution{StepID: "A", Status: trace.StatusRunning}
	assert.False(t, IsTerminal(flow, ex))

	ex.Steps["A"].Status = trace.StatusSuccess
	assert.False(t, IsTerminal(flow, ex), "B became startable")

	ex.Steps["B"] = &trace.StepExecution{StepID: "B", Status: trace.StatusSuccess}
	assert.True(t, IsTerminal(flow, ex))
}

func TestIsTerminal_FailedDependency(t *testing.T) {
	flow := flowOf(
		step("A", []string{}),
		step("B", []string{"A"}),
		step("C", []string{"B"}),
	)

	// A failed: B and C can never start, so the run is done even though
	// they are idle.
	ex := &trace.FlowExecution{Steps: map[string]*trace.StepExecution{
		"A": {StepID: "A", Status: trace.StatusError},
	}}
	assert.True(t, IsTerminal(flow, ex))
}
