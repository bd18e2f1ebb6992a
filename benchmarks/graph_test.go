package benchmarks

import (
	"fmt"
	"testing"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
)

func nodeID(i int) string {
	return fmt.Sprintf("node-%d", i)
}

func enhancer(id string) promptgraph.Node {
	return promptgraph.Node{
		ID:   id,
		Type: promptgraph.TypePromptEnhancer,
		Data: promptgraph.PromptEnhancerData{Base: promptgraph.Base{Label: id}},
	}
}

func textEdge(source, target string) promptgraph.Edge {
	return promptgraph.Edge{ID: source + "->" + target, Source: source, Target: target, TargetHandle: "text"}
}

// buildLinear creates n nodes connected in a chain.
func buildLinear(n int) ([]promptgraph.Node, []promptgraph.Edge) {
	nodes := make([]promptgraph.Node, n)
	edges := make([]promptgraph.Edge, 0, n-1)
	for i := range n {
		nodes[i] = enhancer(nodeID(i))
		if i > 0 {
			edges = append(edges, textEdge(nodeID(i-1), nodeID(i)))
		}
	}
	return nodes, edges
}

// buildFanOut creates one root feeding n-1 leaves.
func buildFanOut(n int) ([]promptgraph.Node, []promptgraph.Edge) {
	nodes := []promptgraph.Node{enhancer("root")}
	edges := make([]promptgraph.Edge, 0, n-1)
	for i := 1; i < n; i++ {
		nodes = append(nodes, enhancer(nodeID(i)))
		edges = append(edges, textEdge("root", nodeID(i)))
	}
	return nodes, edges
}

// buildLayered creates layers of width w where every node feeds every node
// of the next layer.
func buildLayered(layers, w int) ([]promptgraph.Node, []promptgraph.Edge) {
	var nodes []promptgraph.Node
	var edges []promptgraph.Edge
	id := func(l, i int) string { return fmt.Sprintf("l%d-%d", l, i) }
	for l := range layers {
		for i := range w {
			nodes = append(nodes, enhancer(id(l, i)))
			if l == 0 {
				continue
			}
			for j := range w {
				edges = append(edges, textEdge(id(l-1, j), id(l, i)))
			}
		}
	}
	return nodes, edges
}

func benchmarkPlan(b *testing.B, nodes []promptgraph.Node, edges []promptgraph.Edge) {
	b.Helper()
	b.ReportAllocs()
	for b.Loop() {
		if _, err := promptgraph.BuildPlan(nodes, edges); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBuildPlan_Linear_10 plans a 10-node chain.
func BenchmarkBuildPlan_Linear_10(b *testing.B) {
	nodes, edges := buildLinear(10)
	benchmarkPlan(b, nodes, edges)
}

// BenchmarkBuildPlan_Linear_100 plans a 100-node chain.
func BenchmarkBuildPlan_Linear_100(b *testing.B) {
	nodes, edges := buildLinear(100)
	benchmarkPlan(b, nodes, edges)
}

// BenchmarkBuildPlan_FanOut_100 plans one root with 99 leaves.
func BenchmarkBuildPlan_FanOut_100(b *testing.B) {
	nodes, edges := buildFanOut(100)
	benchmarkPlan(b, nodes, edges)
}

// BenchmarkBuildPlan_Layered_10x10 plans ten fully connected layers.
func BenchmarkBuildPlan_Layered_10x10(b *testing.B) {
	nodes, edges := buildLayered(10, 10)
	benchmarkPlan(b, nodes, edges)
}

// BenchmarkSelectExecutionSet_Linear_100 selects from the middle of a
// chain with nothing cached.
func BenchmarkSelectExecutionSet_Linear_100(b *testing.B) {
	nodes, edges := buildLinear(100)
	b.ReportAllocs()
	for b.Loop() {
		promptgraph.SelectExecutionSet(nodeID(50), nodes, edges, nil)
	}
}

// BenchmarkSelectExecutionSet_Layered_Cached selects from the last layer
// with every upstream output cached.
func BenchmarkSelectExecutionSet_Layered_Cached(b *testing.B) {
	nodes, edges := buildLayered(10, 10)
	cached := make(map[string]promptgraph.NodeOutput, len(nodes))
	for _, n := range nodes {
		cached[n.ID] = promptgraph.NodeOutput{Text: n.ID}
	}
	b.ReportAllocs()
	for b.Loop() {
		promptgraph.SelectExecutionSet("l9-0", nodes, edges, cached)
	}
}
