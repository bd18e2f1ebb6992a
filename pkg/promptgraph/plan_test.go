package promptgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildPlan_Linear verifies a simple chain is ordered source first.
func TestBuildPlan_Linear(t *testing.T) {
	nodes := []Node{node("C"), node("B"), node("A")}
	edges := []Edge{textEdge("A", "B"), textEdge("B", "C")}

	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, stepIDs(steps))
}

// TestBuildPlan_StableTieBreak verifies independent nodes keep input order.
func TestBuildPlan_StableTieBreak(t *testing.T) {
	nodes := []Node{node("z"), node("a"), node("m"), node("sink")}
	edges := []Edge{
		textEdge("m", "sink"),
		textEdge("z", "sink"),
		textEdge("a", "sink"),
	}

	for i := 0; i < 20; i++ {
		steps, err := BuildPlan(nodes, edges)
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "a", "m", "sink"}, stepIDs(steps))
	}
}

// TestBuildPlan_FIFOQueue verifies nodes released later are queued behind
// nodes that were already ready.
func TestBuildPlan_FIFOQueue(t *testing.T) {
	// a -> c, b, c -> d. b is ready before c is released.
	nodes := []Node{node("a"), node("b"), node("c"), node("d")}
	edges := []Edge{textEdge("a", "c"), textEdge("c", "d")}

	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, stepIDs(steps))
}

// TestBuildPlan_TopologicalProperty checks every edge is respected on a
// diamond with mixed edge classes.
func TestBuildPlan_TopologicalProperty(t *testing.T) {
	nodes := []Node{node("out"), node("left"), node("persona"), node("right"), node("in")}
	edges := []Edge{
		textEdge("in", "left"),
		textEdge("in", "right"),
		textEdge("left", "out"),
		textEdge("right", "out"),
		adapterEdge("persona", "left"),
	}

	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)
	require.Len(t, steps, len(nodes))

	pos := make(map[string]int)
	for i, s := range steps {
		pos[s.NodeID] = i
	}
	for _, e := range edges {
		assert.Less(t, pos[e.Source], pos[e.Target], "edge %s", e.ID)
	}
}

// TestBuildPlan_SeparatesEdgeClasses verifies predecessor lists per class.
func TestBuildPlan_SeparatesEdgeClasses(t *testing.T) {
	nodes := []Node{node("prompt"), node("persona"), node("style"), node("story")}
	edges := []Edge{
		textEdge("prompt", "story"),
		adapterEdge("persona", "story"),
		adapterEdge("style", "story"),
	}

	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)

	last := steps[len(steps)-1]
	assert.Equal(t, "story", last.NodeID)
	assert.Equal(t, TypePromptEnhancer, last.NodeType)
	assert.Equal(t, []string{"prompt"}, last.InputNodeIDs)
	assert.Equal(t, []string{"persona", "style"}, last.AdapterNodeIDs)

	assert.Empty(t, steps[0].InputNodeIDs)
	assert.Empty(t, steps[0].AdapterNodeIDs)
}

// TestBuildPlan_TextCycle verifies a text-edge cycle is rejected.
func TestBuildPlan_TextCycle(t *testing.T) {
	nodes := []Node{node("A"), node("B"), node("C")}
	edges := []Edge{textEdge("A", "B"), textEdge("B", "C"), textEdge("C", "B")}

	steps, err := BuildPlan(nodes, edges)
	assert.Nil(t, steps)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))

	var cycleErr *CycleError
	require.True(t, errors.As(err, &cycleErr))
	assert.Equal(t, 1, cycleErr.Planned)
	assert.Equal(t, 3, cycleErr.Executable)
}

// TestBuildPlan_AdapterOnlyCycle verifies adapter edges count toward
// in-degree, so a cycle made only of adapter edges is also rejected.
func TestBuildPlan_AdapterOnlyCycle(t *testing.T) {
	nodes := []Node{node("A"), node("B")}
	edges := []Edge{adapterEdge("A", "B"), adapterEdge("B", "A")}

	_, err := BuildPlan(nodes, edges)
	assert.ErrorIs(t, err, ErrCycle)
}

// TestBuildPlan_SelfLoop verifies a node feeding itself is a cycle.
func TestBuildPlan_SelfLoop(t *testing.T) {
	_, err := BuildPlan([]Node{node("A")}, []Edge{textEdge("A", "A")})
	assert.ErrorIs(t, err, ErrCycle)
}

// TestBuildPlan_DuplicateIDs verifies duplicates do not cause a false cycle.
func TestBuildPlan_DuplicateIDs(t *testing.T) {
	nodes := []Node{node("A"), node("B"), node("A"), node("B")}
	edges := []Edge{textEdge("A", "B")}

	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, stepIDs(steps))
}

// TestBuildPlan_SkipsContainers verifies groups are never planned and
// edges touching them are ignored.
func TestBuildPlan_SkipsContainers(t *testing.T) {
	child := node("child")
	child.ParentID = "g"
	nodes := []Node{group("g"), child, node("next")}
	edges := []Edge{textEdge("g", "child"), textEdge("child", "next")}

	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"child", "next"}, stepIDs(steps))
}

// TestBuildPlan_DanglingEdges verifies edges to unknown nodes are ignored
// for ordering.
func TestBuildPlan_DanglingEdges(t *testing.T) {
	nodes := []Node{node("A"), node("B")}
	edges := []Edge{textEdge("ghost", "A"), textEdge("A", "B")}

	steps, err := BuildPlan(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, stepIDs(steps))
	// Predecessor lists still reflect the full edge slice.
	assert.Equal(t, []string{"ghost"}, steps[0].InputNodeIDs)
}

// TestBuildPlan_Empty verifies empty input gives an empty plan.
func TestBuildPlan_Empty(t *testing.T) {
	steps, err := BuildPlan(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, steps)

	steps, err = BuildPlan([]Node{group("g")}, nil)
	require.NoError(t, err)
	assert.Empty(t, steps)
}
