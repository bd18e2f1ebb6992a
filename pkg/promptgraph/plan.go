package promptgraph

// BuildPlan compiles nodes and edges into an ordered execution plan.
// It is deterministic and has no side effects.
//
// The order is Kahn's algorithm with a stable FIFO queue:
//  1. Container nodes are dropped and node IDs are deduplicated (first wins).
//     A duplicate ID would otherwise leave an unresolved in-degree and be
//     reported as a cycle.
//  2. Every edge between executable nodes adds to the target's in-degree,
//     text and adapter edges alike, so an adapter source always runs
//     before its consumer.
//  3. Zero in-degree nodes seed the queue in input order. Targets are
//     enqueued in edge order as their in-degree reaches zero. Ties are
//     therefore broken by the order of the input slices, never by map
//     iteration.
//
// Each step carries its text predecessors and adapter predecessors as two
// separate lists, computed over the full edge slice.
//
// If fewer steps than executable nodes are produced the graph has a cycle
// and a *CycleError is returned. The error does not name the nodes
// involved.
func BuildPlan(nodes []Node, edges []Edge) ([]ExecutionStep, error) {
	executable := make([]Node, 0, len(nodes))
	index := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if n.IsContainer() {
			continue
		}
		if _, dup := index[n.ID]; dup {
			continue
		}
		index[n.ID] = len(executable)
		executable = append(executable, n)
	}

	adjacency := make([][]string, len(executable))
	inDegree := make([]int, len(executable))
	for _, e := range edges {
		src, okSrc := index[e.Source]
		dst, okDst := index[e.Target]
		if !okSrc || !okDst {
			continue
		}
		adjacency[src] = append(adjacency[src], e.Target)
		inDegree[dst]++
	}

	queue := make([]string, 0, len(executable))
	for i, n := range executable {
		if inDegree[i] == 0 {
			queue = append(queue, n.ID)
		}
	}

	steps := make([]ExecutionStep, 0, len(executable))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		i := index[id]
		node := executable[i]
		steps = append(steps, ExecutionStep{
			NodeID:         id,
			NodeType:       node.Type,
			InputNodeIDs:   TextInputs(id, edges),
			AdapterNodeIDs: AdapterInputs(id, edges),
		})

		for _, target := range adjacency[i] {
			t := index[target]
			inDegree[t]--
			if inDegree[t] == 0 {
				queue = append(queue, target)
			}
		}
	}

	if len(steps) < len(executable) {
		return nil, &CycleError{Planned: len(steps), Executable: len(executable)}
	}

	return steps, nil
}
