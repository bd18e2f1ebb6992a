package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/event"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/undo"
)

// Flow is one open flow: its graph, execution state and undo history.
// All methods are safe for concurrent use.
//
// Graph mutations record an undo snapshot, mark the flow dirty and
// publish flow:dirty. Execution never records undo snapshots.
type Flow struct {
	id   string
	orch *Orchestrator

	mu         sync.Mutex
	name       string
	nodes      []promptgraph.Node
	edges      []promptgraph.Edge
	providerID string
	createdAt  time.Time
	updatedAt  time.Time
	state      promptgraph.ExecutionState
	history    *undo.History
	revision   uint64
	saved      uint64
	closed     bool
}

func newFlow(o *Orchestrator, rec promptgraph.FlowRecord, history *undo.History) *Flow {
	f := &Flow{
		id:         rec.ID,
		orch:       o,
		name:       rec.Name,
		nodes:      promptgraph.SortNodes(promptgraph.CloneNodes(rec.Nodes)),
		edges:      promptgraph.CloneEdges(rec.Edges),
		providerID: rec.ProviderID,
		createdAt:  rec.CreatedAt,
		updatedAt:  rec.UpdatedAt,
		state:      promptgraph.NewExecutionState(),
		history:    history,
	}
	history.Seed(f.graphLocked())
	return f
}

// ID returns the flow ID.
func (f *Flow) ID() string { return f.id }

// Name returns the flow name.
func (f *Flow) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

// ProviderID returns the flow-level provider.
func (f *Flow) ProviderID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providerID
}

// Nodes returns a copy of the nodes, containers first.
func (f *Flow) Nodes() []promptgraph.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return promptgraph.CloneNodes(f.nodes)
}

// Edges returns a copy of the edges.
func (f *Flow) Edges() []promptgraph.Edge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return promptgraph.CloneEdges(f.edges)
}

// Node returns a copy of one node.
func (f *Flow) Node(id string) (promptgraph.Node, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := promptgraph.FindNode(f.nodes, id)
	if !ok {
		return promptgraph.Node{}, false
	}
	return n.Clone(), true
}

// ExecutionState returns a deep copy of the execution state.
func (f *Flow) ExecutionState() promptgraph.ExecutionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

// Snapshot returns the persistable form of the flow.
func (f *Flow) Snapshot() promptgraph.FlowRecord {
	rec, _ := f.Capture()
	return rec
}

// Capture returns the persistable form together with the revision it
// reflects. Pass the revision to MarkClean once the record is saved.
func (f *Flow) Capture() (promptgraph.FlowRecord, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return promptgraph.FlowRecord{
		ID:         f.id,
		Name:       f.name,
		Nodes:      promptgraph.CloneNodes(f.nodes),
		Edges:      promptgraph.CloneEdges(f.edges),
		ProviderID: f.providerID,
		CreatedAt:  f.createdAt,
		UpdatedAt:  f.updatedAt,
	}, f.revision
}

// IsDirty reports whether the flow changed since it was last marked clean.
func (f *Flow) IsDirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revision != f.saved
}

// MarkClean records that revision has been persisted. It reports whether
// the flow is now clean; a change made after the capture keeps it dirty.
func (f *Flow) MarkClean(revision uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if revision > f.saved {
		f.saved = revision
	}
	return f.saved == f.revision
}

// CanUndo reports whether Undo would change the graph.
func (f *Flow) CanUndo() bool { return f.history.CanUndo() }

// CanRedo reports whether Redo would change the graph.
func (f *Flow) CanRedo() bool { return f.history.CanRedo() }

// Undo restores the graph before the last recorded change.
func (f *Flow) Undo() bool {
	return f.restore(f.history.Undo)
}

// Redo restores the graph undone by the last Undo.
func (f *Flow) Redo() bool {
	return f.restore(f.history.Redo)
}

func (f *Flow) restore(step func(undo.Snapshot) (undo.Snapshot, bool)) bool {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return false
	}
	snap, ok := step(f.graphLocked())
	if ok {
		f.nodes, f.edges = snap.Nodes, snap.Edges
		f.touchLocked()
	}
	f.mu.Unlock()

	if ok {
		f.publish(context.Background(), event.New(event.FlowDirty, f.id))
	}
	return ok
}

// AddNode adds a node. A node without data gets the zero value of its
// type's data. A ParentID must name an existing container.
func (f *Flow) AddNode(n promptgraph.Node) error {
	if n.ID == "" || n.Type == "" {
		return fmt.Errorf("add node: %w", ErrInvalidNode)
	}
	if n.Data == nil {
		data, err := promptgraph.DecodeNodeData(n.Type, nil)
		if err != nil {
			return fmt.Errorf("add node %s: %w", n.ID, err)
		}
		n.Data = data
	}
	n = n.Clone()

	return f.mutate(false, func() error {
		if _, exists := promptgraph.FindNode(f.nodes, n.ID); exists {
			return fmt.Errorf("add node %s: %w", n.ID, ErrDuplicateNode)
		}
		if n.ParentID != "" {
			if err := f.checkContainerLocked(n.ParentID); err != nil {
				return fmt.Errorf("add node %s: %w", n.ID, err)
			}
		}
		f.nodes = promptgraph.SortNodes(append(f.nodes, n))
		return nil
	})
}

// RemoveNode removes a node and every edge touching it as one undo step.
// Children of a removed container stay, moved to absolute positions.
func (f *Flow) RemoveNode(id string) error {
	return f.mutate(false, func() error {
		removed, ok := promptgraph.FindNode(f.nodes, id)
		if !ok {
			return fmt.Errorf("remove node: %w: %s", promptgraph.ErrNodeNotFound, id)
		}

		nodes := make([]promptgraph.Node, 0, len(f.nodes)-1)
		for _, n := range f.nodes {
			switch {
			case n.ID == id:
				continue
			case n.ParentID == id:
				n.ParentID = ""
				n.Position = absolute(n.Position, removed.Position)
			}
			nodes = append(nodes, n)
		}

		edges := make([]promptgraph.Edge, 0, len(f.edges))
		for _, e := range f.edges {
			if e.Source != id && e.Target != id {
				edges = append(edges, e)
			}
		}

		f.nodes = promptgraph.SortNodes(nodes)
		f.edges = edges
		delete(f.state.NodeStatus, id)
		delete(f.state.NodeOutputs, id)
		return nil
	})
}

// Connect adds an edge and returns it. An empty ID is generated.
// Connecting the same handles twice returns the existing edge unchanged.
func (f *Flow) Connect(e promptgraph.Edge) (promptgraph.Edge, error) {
	if e.Source == "" || e.Target == "" || e.Source == e.Target {
		return promptgraph.Edge{}, fmt.Errorf("connect %s -> %s: %w", e.Source, e.Target, ErrInvalidEdge)
	}

	f.mu.Lock()
	for _, existing := range f.edges {
		if sameConnection(existing, e) {
			f.mu.Unlock()
			return existing, nil
		}
	}
	f.mu.Unlock()

	if e.ID == "" {
		e.ID = "e-" + uuid.New().String()
	}
	err := f.mutate(false, func() error {
		for _, id := range []string{e.Source, e.Target} {
			if _, ok := promptgraph.FindNode(f.nodes, id); !ok {
				return fmt.Errorf("connect: %w: %s", promptgraph.ErrNodeNotFound, id)
			}
		}
		for _, existing := range f.edges {
			if existing.ID == e.ID {
				return fmt.Errorf("connect: %w: duplicate id %s", ErrInvalidEdge, e.ID)
			}
		}
		f.edges = append(f.edges, e)
		return nil
	})
	if err != nil {
		return promptgraph.Edge{}, err
	}
	return e, nil
}

// RemoveEdge removes an edge.
func (f *Flow) RemoveEdge(id string) error {
	return f.mutate(false, func() error {
		for i, e := range f.edges {
			if e.ID == id {
				f.edges = append(f.edges[:i:i], f.edges[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("remove edge %s: %w", id, ErrEdgeNotFound)
	})
}

// UpdateNodeData replaces a node's data. Edits are debounced: a burst of
// updates is one undo step.
func (f *Flow) UpdateNodeData(id string, data promptgraph.NodeData) error {
	if data == nil {
		return fmt.Errorf("update node %s: %w", id, ErrInvalidNode)
	}
	data = data.Clone()
	return f.mutate(true, func() error {
		return f.updateNodeLocked(id, func(n *promptgraph.Node) error {
			if data.Kind() != n.Type {
				return fmt.Errorf("update node %s: %w: %s data on %s node", id, ErrTypeMismatch, data.Kind(), n.Type)
			}
			n.Data = data
			return nil
		})
	})
}

// MoveNode sets a node's position. Moves are debounced like data edits.
func (f *Flow) MoveNode(id string, pos promptgraph.Position) error {
	return f.mutate(true, func() error {
		return f.updateNodeLocked(id, func(n *promptgraph.Node) error {
			n.Position = pos
			return nil
		})
	})
}

// SetNodeParent places a node inside a container, keeping its on-canvas
// location by converting its position to be relative to the parent.
func (f *Flow) SetNodeParent(id, parentID string) error {
	return f.mutate(false, func() error {
		if id == parentID {
			return fmt.Errorf("set parent of %s: %w", id, ErrNotContainer)
		}
		if err := f.checkContainerLocked(parentID); err != nil {
			return fmt.Errorf("set parent of %s: %w", id, err)
		}
		parent, _ := promptgraph.FindNode(f.nodes, parentID)

		err := f.updateNodeLocked(id, func(n *promptgraph.Node) error {
			pos := n.Position
			if n.ParentID != "" {
				if old, ok := promptgraph.FindNode(f.nodes, n.ParentID); ok {
					pos = absolute(pos, old.Position)
				}
			}
			n.ParentID = parentID
			n.Position = promptgraph.Position{X: pos.X - parent.Position.X, Y: pos.Y - parent.Position.Y}
			return nil
		})
		if err != nil {
			return err
		}
		f.nodes = promptgraph.SortNodes(f.nodes)
		return nil
	})
}

// RemoveNodeFromGroup detaches a node from its container, converting its
// position back to absolute. A node without a parent is left unchanged.
func (f *Flow) RemoveNodeFromGroup(id string) error {
	f.mu.Lock()
	n, ok := promptgraph.FindNode(f.nodes, id)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("remove from group: %w: %s", promptgraph.ErrNodeNotFound, id)
	}
	if n.ParentID == "" {
		return nil
	}

	return f.mutate(false, func() error {
		err := f.updateNodeLocked(id, func(n *promptgraph.Node) error {
			if parent, ok := promptgraph.FindNode(f.nodes, n.ParentID); ok {
				n.Position = absolute(n.Position, parent.Position)
			}
			n.ParentID = ""
			return nil
		})
		if err != nil {
			return err
		}
		f.nodes = promptgraph.SortNodes(f.nodes)
		return nil
	})
}

// Rename changes the flow name. Renaming is not an undo step.
func (f *Flow) Rename(name string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	changed := f.name != name
	if changed {
		f.name = name
		f.touchLocked()
	}
	f.mu.Unlock()

	if changed {
		ctx := context.Background()
		f.publish(ctx, event.New(event.FlowRenamed, f.id, event.WithName(name)))
		f.publish(ctx, event.New(event.FlowDirty, f.id))
	}
	return nil
}

// SetProvider changes the flow-level provider. It is not an undo step.
func (f *Flow) SetProvider(id string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	changed := f.providerID != id
	if changed {
		f.providerID = id
		f.touchLocked()
	}
	f.mu.Unlock()

	if changed {
		f.publish(context.Background(), event.New(event.FlowDirty, f.id))
	}
	return nil
}

// mutate applies fn under the lock. On success the graph before fn is
// pushed to the history and flow:dirty is published.
func (f *Flow) mutate(debounce bool, fn func() error) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	before := f.graphLocked()
	if err := fn(); err != nil {
		f.mu.Unlock()
		return err
	}
	f.history.Push(before, debounce)
	f.touchLocked()
	f.mu.Unlock()

	f.publish(context.Background(), event.New(event.FlowDirty, f.id))
	return nil
}

// updateNodeLocked applies fn to a copy of the node and stores it in a
// fresh slice, so snapshots taken earlier never observe the change.
func (f *Flow) updateNodeLocked(id string, fn func(*promptgraph.Node) error) error {
	for i, n := range f.nodes {
		if n.ID != id {
			continue
		}
		if err := fn(&n); err != nil {
			return err
		}
		nodes := make([]promptgraph.Node, len(f.nodes))
		copy(nodes, f.nodes)
		nodes[i] = n
		f.nodes = nodes
		return nil
	}
	return fmt.Errorf("%w: %s", promptgraph.ErrNodeNotFound, id)
}

func (f *Flow) checkContainerLocked(id string) error {
	parent, ok := promptgraph.FindNode(f.nodes, id)
	if !ok {
		return fmt.Errorf("%w: %s", promptgraph.ErrNodeNotFound, id)
	}
	if !parent.IsContainer() {
		return fmt.Errorf("%w: %s", ErrNotContainer, id)
	}
	return nil
}

func (f *Flow) graphLocked() undo.Snapshot {
	return undo.Snapshot{
		Nodes: promptgraph.CloneNodes(f.nodes),
		Edges: promptgraph.CloneEdges(f.edges),
	}
}

func (f *Flow) touchLocked() {
	f.revision++
	f.updatedAt = f.orch.now()
}

func (f *Flow) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.IsRunning {
		return ErrAlreadyRunning
	}
	f.closed = true
	f.history.Dispose()
	f.state = promptgraph.NewExecutionState()
	return nil
}

func (f *Flow) publish(ctx context.Context, evt event.Event) {
	f.orch.publish(ctx, evt)
}

func sameConnection(a, b promptgraph.Edge) bool {
	return a.Source == b.Source && a.Target == b.Target &&
		a.SourceHandle == b.SourceHandle && a.TargetHandle == b.TargetHandle
}

func absolute(pos, parent promptgraph.Position) promptgraph.Position {
	return promptgraph.Position{X: pos.X + parent.X, Y: pos.Y + parent.Y}
}
