package promptgraph

// SelectExecutionSet returns the nodes that must run to satisfy a "run
// from triggerID" request.
//
// The set is built in three passes:
//  1. The trigger and everything downstream of it. Their outputs may change.
//  2. Upstream nodes of the trigger with no usable output in existing.
//     Ancestors with a good cached output are not re-run. An output that
//     records an error is not usable.
//  3. A fixed point over adapter edges: any adapter source feeding a node in
//     the set joins the set. Adapter data is injected and must be fresh
//     whenever its consumer runs.
//
// Nodes outside the set keep their status and output across the run.
func SelectExecutionSet(triggerID string, nodes []Node, edges []Edge, existing map[string]NodeOutput) map[string]bool {
	selected := Downstream(triggerID, nodes, edges)

	for id := range Upstream(triggerID, nodes, edges) {
		if id == triggerID {
			continue
		}
		if out, ok := existing[id]; !ok || out.Failed() {
			selected[id] = true
		}
	}

	known := nodeIDSet(nodes)
	worklist := make([]string, 0, len(selected))
	for id := range selected {
		worklist = append(worklist, id)
	}
	for len(worklist) > 0 {
		id := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		for _, src := range AdapterInputs(id, edges) {
			if known[src] && !selected[src] {
				selected[src] = true
				worklist = append(worklist, src)
			}
		}
	}

	return selected
}

// FilterNodes returns the nodes whose IDs are in keep, preserving order.
func FilterNodes(nodes []Node, keep map[string]bool) []Node {
	out := make([]Node, 0, len(keep))
	for _, n := range nodes {
		if keep[n.ID] {
			out = append(out, n)
		}
	}
	return out
}
