package promptgraph

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainABC() ([]Node, []Edge) {
	return []Node{node("A"), node("B"), node("C")},
		[]Edge{textEdge("A", "B"), textEdge("B", "C")}
}

func runPlan(t *testing.T, runner *Runner, nodes []Node, edges []Edge, cached map[string]NodeOutput) (map[string]NodeOutput, *statusRecorder) {
	t.Helper()
	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)

	rec := &statusRecorder{}
	outputs, err := runner.Run(context.Background(), RunRequest{
		Steps:  steps,
		Nodes:  nodes,
		Cached: cached,
	}, rec.record)
	require.NoError(t, err)
	return outputs, rec
}

// TestRunner_CallbackOrder verifies all pendings fire before any execution
// and each node then runs to completion in plan order.
func TestRunner_CallbackOrder(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())
	nodes, edges := chainABC()

	outputs, rec := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	assert.Equal(t, []string{
		"A:pending", "B:pending", "C:pending",
		"A:running", "A:complete",
		"B:running", "B:complete",
		"C:running", "C:complete",
	}, rec.sequence())

	assert.Equal(t, "A", outputs["A"].Text)
	assert.Equal(t, "B<A", outputs["B"].Text)
	assert.Equal(t, "C<B<A", outputs["C"].Text)
}

// TestRunner_TerminalEventsCarryOutput verifies only terminal events carry output.
func TestRunner_TerminalEventsCarryOutput(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())
	nodes, edges := chainABC()

	_, rec := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	for _, e := range rec.events {
		if e.Status.Terminal() {
			assert.NotNil(t, e.Output, e.String())
		} else {
			assert.Nil(t, e.Output, e.String())
		}
	}
}

// TestRunner_UpstreamFailure verifies a failure propagates to the whole
// downstream closure without calling the downstream executors.
func TestRunner_UpstreamFailure(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.failOn("A"))
	nodes, edges := chainABC()

	outputs, rec := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	assert.Equal(t, 1, spy.count("A"))
	assert.Equal(t, 0, spy.count("B"))
	assert.Equal(t, 0, spy.count("C"))

	assert.Equal(t, "provider unavailable", outputs["A"].Error)
	assert.Equal(t, "partial", outputs["A"].Text, "partial fields are kept")
	assert.Equal(t, NodeOutput{Error: UpstreamFailedMessage}, outputs["B"])
	assert.Equal(t, NodeOutput{Error: UpstreamFailedMessage}, outputs["C"])

	assert.Equal(t, []string{
		"A:pending", "B:pending", "C:pending",
		"A:running", "A:error",
		"B:error",
		"C:error",
	}, rec.sequence())

	last, ok := rec.last("C")
	require.True(t, ok)
	require.NotNil(t, last.Output)
	assert.Equal(t, UpstreamFailedMessage, last.Output.Error)
}

// TestRunner_IndependentBranchContinues verifies a failure does not stop
// unrelated branches.
func TestRunner_IndependentBranchContinues(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.failOn("bad"))
	nodes := []Node{node("bad"), node("good"), node("afterBad"), node("afterGood")}
	edges := []Edge{textEdge("bad", "afterBad"), textEdge("good", "afterGood")}

	outputs, _ := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	assert.True(t, outputs["bad"].Failed())
	assert.Equal(t, UpstreamFailedMessage, outputs["afterBad"].Error)
	assert.False(t, outputs["good"].Failed())
	assert.Equal(t, "afterGood<good", outputs["afterGood"].Text)
}

// TestRunner_AdapterFailurePropagates verifies adapter predecessors are
// checked as well as text predecessors.
func TestRunner_AdapterFailurePropagates(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.failOn("persona"))
	nodes := []Node{node("prompt"), node("persona"), node("story")}
	edges := []Edge{textEdge("prompt", "story"), adapterEdge("persona", "story")}

	outputs, _ := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	assert.Equal(t, 0, spy.count("story"))
	assert.Equal(t, UpstreamFailedMessage, outputs["story"].Error)
}

// TestRunner_AdapterInputs verifies adapter outputs arrive separately from text.
func TestRunner_AdapterInputs(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())
	nodes := []Node{node("prompt"), node("persona"), node("story")}
	edges := []Edge{textEdge("prompt", "story"), adapterEdge("persona", "story")}

	runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	in := spy.input("story")
	require.Len(t, in.Inputs, 1)
	assert.Equal(t, "prompt", in.Inputs[0].Text)
	require.Len(t, in.AdapterInputs, 1)
	assert.Equal(t, "persona", in.AdapterInputs[0].Text)
	assert.IsType(t, PromptEnhancerData{}, in.Data)
}

// TestRunner_UnknownTypeSkipped verifies nodes without an executor are skipped.
func TestRunner_UnknownTypeSkipped(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())
	nodes := []Node{node("A"), typed("note", "comment"), node("B")}
	edges := []Edge{textEdge("A", "note"), textEdge("A", "B")}

	outputs, rec := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	last, ok := rec.last("note")
	require.True(t, ok)
	assert.Equal(t, StatusSkipped, last.Status)
	assert.Nil(t, last.Output)
	assert.NotContains(t, outputs, "note")
	assert.Equal(t, "B<A", outputs["B"].Text)
	assert.NotContains(t, rec.sequence(), "note:running")
}

// TestRunner_SkippedPredecessorIsNotAnError verifies a consumer of a
// skipped node still runs, with that input absent.
func TestRunner_SkippedPredecessorIsNotAnError(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())
	nodes := []Node{typed("note", "comment"), node("B")}
	edges := []Edge{textEdge("note", "B")}

	outputs, _ := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	assert.Equal(t, 1, spy.count("B"))
	assert.Equal(t, "B", outputs["B"].Text)
	assert.Empty(t, spy.input("B").Inputs)
}

// TestRunner_PanicRecovered verifies a panicking executor fails only its node.
func TestRunner_PanicRecovered(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().
		Register(TypePromptEnhancer, spy.echo()).
		Register(TypeTranslator, func(context.Context, Input) Result {
			panic("boom")
		})
	nodes := []Node{node("A"), typed("T", TypeTranslator), node("C"), node("D")}
	edges := []Edge{textEdge("A", "T"), textEdge("T", "C")}

	outputs, rec := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	assert.Contains(t, outputs["T"].Error, "boom")
	assert.Equal(t, UpstreamFailedMessage, outputs["C"].Error)
	assert.Equal(t, "D", outputs["D"].Text)

	last, _ := rec.last("T")
	assert.Equal(t, StatusError, last.Status)
}

// TestRunner_FailWithNilError verifies a failure without an error value
// still produces an error output.
func TestRunner_FailWithNilError(t *testing.T) {
	reg := NewRegistry().Register(TypePromptEnhancer, func(context.Context, Input) Result {
		return Fail(NodeOutput{}, nil)
	})
	outputs, _ := runPlan(t, NewRunner(WithRegistry(reg)), []Node{node("A")}, nil, nil)

	assert.Equal(t, ErrUnknownFailure.Error(), outputs["A"].Error)
}

// TestRunner_FailWithEmptyMessage verifies a failure whose error has no
// text still fails every downstream node without running it.
func TestRunner_FailWithEmptyMessage(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, func(ctx context.Context, in Input) Result {
		if in.NodeID == "A" {
			return Fail(NodeOutput{}, errors.New(""))
		}
		return spy.echo()(ctx, in)
	})
	nodes, edges := chainABC()

	outputs, rec := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, nil)

	assert.Equal(t, ErrUnknownFailure.Error(), outputs["A"].Error)
	assert.Equal(t, 0, spy.count("B"))
	assert.Equal(t, 0, spy.count("C"))
	for _, id := range []string{"B", "C"} {
		last, _ := rec.last(id)
		assert.Equal(t, StatusError, last.Status, id)
		assert.Equal(t, UpstreamFailedMessage, outputs[id].Error)
	}
	assert.Equal(t, []string{
		"A:pending", "B:pending", "C:pending",
		"A:running", "A:error", "B:error", "C:error",
	}, rec.sequence())
}

// TestRunner_CachedOutputs verifies cached predecessors are read but not run.
func TestRunner_CachedOutputs(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())
	nodes, edges := chainABC()

	// Only B and C are planned; A comes from the cache.
	planned := FilterNodes(nodes, map[string]bool{"B": true, "C": true})
	steps, err := BuildPlan(planned, edges)
	require.NoError(t, err)

	rec := &statusRecorder{}
	outputs, err := NewRunner(WithRegistry(reg)).Run(context.Background(), RunRequest{
		Steps:  steps,
		Nodes:  planned,
		Cached: map[string]NodeOutput{"A": {Text: "cached"}},
	}, rec.record)
	require.NoError(t, err)

	assert.Equal(t, 0, spy.count("A"))
	assert.Equal(t, "B<cached", outputs["B"].Text)
	assert.Equal(t, NodeOutput{Text: "cached"}, outputs["A"])
	assert.NotContains(t, rec.sequence(), "A:pending")
}

// TestRunner_CachedFailureBlocksDownstream verifies a cached error output
// still blocks consumers.
func TestRunner_CachedFailureBlocksDownstream(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())
	nodes := []Node{node("B")}
	edges := []Edge{textEdge("A", "B")}

	outputs, _ := runPlan(t, NewRunner(WithRegistry(reg)), nodes, edges, map[string]NodeOutput{"A": {Error: "old"}})

	assert.Equal(t, 0, spy.count("B"))
	assert.Equal(t, UpstreamFailedMessage, outputs["B"].Error)
}

// TestRunner_EmptyGraph verifies an empty plan is rejected.
func TestRunner_EmptyGraph(t *testing.T) {
	called := false
	_, err := NewRunner().Run(context.Background(), RunRequest{}, func(string, Status, *NodeOutput) {
		called = true
	})

	assert.True(t, errors.Is(err, ErrEmptyGraph))
	assert.False(t, called)
}

// TestRunner_NilCallback verifies a nil callback is allowed.
func TestRunner_NilCallback(t *testing.T) {
	reg := NewRegistry().Register(TypePromptEnhancer, newCallSpy().echo())
	steps, err := BuildPlan([]Node{node("A")}, nil)
	require.NoError(t, err)

	outputs, err := NewRunner(WithRegistry(reg)).Run(context.Background(), RunRequest{
		Steps: steps,
		Nodes: []Node{node("A")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", outputs["A"].Text)
}

// TestRunner_ResolvesModel verifies provider/model precedence reaches executors.
func TestRunner_ResolvesModel(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.echo())

	override := Node{ID: "override", Type: TypePromptEnhancer, Data: PromptEnhancerData{
		Base: Base{ProviderID: "openai", Model: "gpt-x"},
	}}
	fallback := node("fallback")
	nodes := []Node{override, fallback}

	steps, err := BuildPlan(nodes, nil)
	require.NoError(t, err)

	table := ModelTable{}
	_, err = NewRunner(WithRegistry(reg), WithResolver(table)).Run(context.Background(), RunRequest{
		Steps:      steps,
		Nodes:      nodes,
		ProviderID: "global",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "openai", spy.input("override").ProviderID)
	assert.Equal(t, "gpt-x", spy.input("override").Model)
	assert.Equal(t, "global", spy.input("fallback").ProviderID)
	assert.Empty(t, spy.input("fallback").Model)
}

// TestRunner_WithObservability verifies metrics and tracing can be enabled
// without changing results.
func TestRunner_WithObservability(t *testing.T) {
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.failOn("B"))
	nodes, edges := chainABC()

	outputs, rec := runPlan(t, NewRunner(
		WithRegistry(reg),
		WithMetrics(true),
		WithTracing(true),
		WithLogger(nil),
	), nodes, edges, nil)

	assert.Equal(t, "A", outputs["A"].Text)
	assert.True(t, outputs["B"].Failed())
	assert.Len(t, rec.events, 8)
}

// TestRunner_LogLinesCarryRunIDOnce verifies every run and node line has
// exactly one run_id and flow_id.
func TestRunner_LogLinesCarryRunIDOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	spy := newCallSpy()
	reg := NewRegistry().Register(TypePromptEnhancer, spy.failOn("B"))
	nodes, edges := chainABC()
	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)

	_, err = NewRunner(WithRegistry(reg), WithLogger(logger)).Run(context.Background(), RunRequest{
		RunID:  "run-1",
		FlowID: "flow-1",
		Steps:  steps,
		Nodes:  nodes,
	}, nil)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, `"run_id":"run-1"`), line)
		assert.Equal(t, 1, strings.Count(line, `"flow_id":"flow-1"`), line)
	}
	assert.Contains(t, lines[0], `"msg":"run starting"`)
	assert.Contains(t, lines[len(lines)-1], `"msg":"run completed"`)
}
