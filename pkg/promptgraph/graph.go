package promptgraph

// TextInputs returns the sources of text edges into nodeID, in edge order.
func TextInputs(nodeID string, edges []Edge) []string {
	ids := []string{}
	for _, e := range edges {
		if e.Target == nodeID && e.IsText() {
			ids = append(ids, e.Source)
		}
	}
	return ids
}

// AdapterInputs returns the sources of adapter edges into nodeID, in edge order.
func AdapterInputs(nodeID string, edges []Edge) []string {
	ids := []string{}
	for _, e := range edges {
		if e.Target == nodeID && e.IsAdapter() {
			ids = append(ids, e.Source)
		}
	}
	return ids
}

// Downstream returns startID and every node reachable from it along
// edges of either class. Edges to nodes outside the graph are ignored.
func Downstream(startID string, nodes []Node, edges []Edge) map[string]bool {
	known := nodeIDSet(nodes)
	return walk(startID, func(current string, visit func(string)) {
		for _, e := range edges {
			if e.Source == current && known[e.Target] {
				visit(e.Target)
			}
		}
	})
}

// Upstream returns startID and every node that reaches it along edges of
// either class.
func Upstream(startID string, nodes []Node, edges []Edge) map[string]bool {
	known := nodeIDSet(nodes)
	return walk(startID, func(current string, visit func(string)) {
		for _, e := range edges {
			if e.Target == current && known[e.Source] {
				visit(e.Source)
			}
		}
	})
}

// walk is a BFS from start; next calls visit for each neighbour.
func walk(start string, next func(current string, visit func(string))) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		next(current, func(id string) {
			if !seen[id] {
				seen[id] = true
				queue = append(queue, id)
			}
		})
	}

	return seen
}

func nodeIDSet(nodes []Node) map[string]bool {
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
	}
	return ids
}

// FindNode returns the first node with the given ID.
func FindNode(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// SortNodes orders nodes so containers come first, then top-level nodes,
// then children. Relative order within each band is preserved. Canvas
// renderers need parents before their children.
func SortNodes(nodes []Node) []Node {
	containers := make(map[string]bool)
	for _, n := range nodes {
		if n.IsContainer() {
			containers[n.ID] = true
		}
	}

	out := make([]Node, 0, len(nodes))
	var topLevel, children []Node
	for _, n := range nodes {
		switch {
		case containers[n.ID]:
			out = append(out, n)
		case n.ParentID != "":
			children = append(children, n)
		default:
			topLevel = append(topLevel, n)
		}
	}
	out = append(out, topLevel...)
	return append(out, children...)
}
