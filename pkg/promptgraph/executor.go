package promptgraph

import (
	"context"
	"sort"
	"sync"
)

// Input is what the Runner hands an executor.
type Input struct {
	// NodeID is the node being executed.
	NodeID string

	// Data is the node's typed configuration.
	Data NodeData

	// Inputs are the outputs of text predecessors, in edge order.
	Inputs []NodeOutput

	// AdapterInputs are the outputs of adapter predecessors, in edge order.
	AdapterInputs []NodeOutput

	// ProviderID and Model are the resolved provider and model for this node.
	// Model may be empty.
	ProviderID string
	Model      string
}

// Result is the outcome of one executor call: either a successful output
// or a failure. A failed Result may still carry partial output fields for
// diagnostics.
type Result struct {
	output NodeOutput
	err    error
}

// Ok returns a successful result.
func Ok(out NodeOutput) Result {
	out.Error = ""
	return Result{output: out}
}

// Fail returns a failed result. If out has no Error message, the message
// of err is used, or ErrUnknownFailure's when that is empty too. A failed
// output always carries an Error so downstream nodes see the failure.
func Fail(out NodeOutput, err error) Result {
	if err == nil {
		err = ErrUnknownFailure
	}
	if out.Error == "" {
		out.Error = err.Error()
	}
	if out.Error == "" {
		out.Error = ErrUnknownFailure.Error()
	}
	return Result{output: out, err: err}
}

// Failf is shorthand for a failed result carrying only a message.
func Failf(msg string) Result {
	return Fail(NodeOutput{}, errorString(msg))
}

// Output returns the recorded output.
func (r Result) Output() NodeOutput { return r.output }

// Err returns the failure, or nil on success.
func (r Result) Err() error { return r.err }

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.err == nil }

type errorString string

func (e errorString) Error() string { return string(e) }

// ErrUnknownFailure is used when a failure carries no error value.
var ErrUnknownFailure error = errorString("unknown error")

// Executor runs a single node. Executors are called strictly one at a
// time, in plan order. A panic inside an executor is recovered and
// recorded as a failure of that node.
type Executor func(ctx context.Context, in Input) Result

// Registry maps node types to executors. It is safe for concurrent use.
// Node types without an executor are skipped by the Runner.
type Registry struct {
	mu        sync.RWMutex
	executors map[NodeType]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[NodeType]Executor)}
}

// Register adds or replaces the executor for a node type.
// Returns the registry for chaining.
func (r *Registry) Register(t NodeType, fn Executor) *Registry {
	if fn == nil {
		panic("promptgraph: executor cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[t] = fn
	return r
}

// Lookup returns the executor for a node type.
func (r *Registry) Lookup(t NodeType) (Executor, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.executors[t]
	return fn, ok
}

// Unregister removes the executor for a node type.
func (r *Registry) Unregister(t NodeType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executors, t)
}

// Types returns the registered node types in sorted order.
func (r *Registry) Types() []NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]NodeType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
