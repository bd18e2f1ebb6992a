package promptgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Helpers shared across tests.

// node builds a prompt enhancer node; most tests only care about IDs.
func node(id string) Node {
	return Node{ID: id, Type: TypePromptEnhancer, Data: PromptEnhancerData{Base: Base{Label: id}}}
}

// typed builds a node of the given type with empty raw data.
func typed(id string, t NodeType) Node {
	data, _ := DecodeNodeData(t, nil)
	return Node{ID: id, Type: t, Data: data}
}

// group builds a container node.
func group(id string) Node {
	return Node{ID: id, Type: TypeGroup, Data: GroupData{}}
}

// textEdge connects source to target on the main input.
func textEdge(source, target string) Edge {
	return Edge{ID: source + "->" + target, Source: source, Target: target, TargetHandle: "text"}
}

// adapterEdge connects source to target on an adapter handle.
func adapterEdge(source, target string) Edge {
	return Edge{ID: source + "=>" + target, Source: source, Target: target, TargetHandle: AdapterHandlePrefix + "persona"}
}

// stepIDs returns the node IDs of a plan in order.
func stepIDs(steps []ExecutionStep) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.NodeID
	}
	return ids
}

// statusEvent is one recorded status callback.
type statusEvent struct {
	NodeID string
	Status Status
	Output *NodeOutput
}

func (e statusEvent) String() string {
	return fmt.Sprintf("%s:%s", e.NodeID, e.Status)
}

// statusRecorder collects status callbacks in order.
type statusRecorder struct {
	mu     sync.Mutex
	events []statusEvent
}

func (r *statusRecorder) record(nodeID string, status Status, out *NodeOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var copied *NodeOutput
	if out != nil {
		o := *out
		copied = &o
	}
	r.events = append(r.events, statusEvent{NodeID: nodeID, Status: status, Output: copied})
}

// sequence returns "id:status" strings in callback order.
func (r *statusRecorder) sequence() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.String()
	}
	return out
}

// last returns the final event for a node.
func (r *statusRecorder) last(nodeID string) (statusEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].NodeID == nodeID {
			return r.events[i], true
		}
	}
	return statusEvent{}, false
}

// callSpy counts executor invocations per node and records the inputs seen.
type callSpy struct {
	mu     sync.Mutex
	calls  map[string]int
	inputs map[string]Input
}

func newCallSpy() *callSpy {
	return &callSpy{calls: make(map[string]int), inputs: make(map[string]Input)}
}

func (s *callSpy) count(nodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[nodeID]
}

func (s *callSpy) input(nodeID string) Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs[nodeID]
}

func (s *callSpy) track(in Input) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[in.NodeID]++
	s.inputs[in.NodeID] = in
}

// echo returns an executor that writes "<id>(<inputs>)" as its text.
func (s *callSpy) echo() Executor {
	return func(_ context.Context, in Input) Result {
		s.track(in)
		text := in.NodeID
		for _, o := range in.Inputs {
			text += "<" + o.Text
		}
		return Ok(NodeOutput{Text: text})
	}
}

// failOn returns an executor that fails for the listed nodes and echoes otherwise.
func (s *callSpy) failOn(ids ...string) Executor {
	failing := make(map[string]bool, len(ids))
	for _, id := range ids {
		failing[id] = true
	}
	echo := s.echo()
	return func(ctx context.Context, in Input) Result {
		if failing[in.NodeID] {
			s.track(in)
			return Fail(NodeOutput{Text: "partial"}, errors.New("provider unavailable"))
		}
		return echo(ctx, in)
	}
}
