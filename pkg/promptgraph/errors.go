package promptgraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for planning and running.
var (
	// ErrCycle indicates the graph contains a cycle.
	ErrCycle = errors.New("graph contains a cycle")

	// ErrEmptyGraph indicates there are no executable nodes to run.
	ErrEmptyGraph = errors.New("no executable nodes found")

	// ErrUpstreamFailed is recorded on nodes whose predecessor failed.
	ErrUpstreamFailed = errors.New("upstream node failed")

	// ErrNodeNotFound indicates a node ID that is not in the graph.
	ErrNodeNotFound = errors.New("node not found")
)

// UpstreamFailedMessage is the output error recorded on nodes skipped
// because a predecessor failed. The root cause stays on the failing node.
const UpstreamFailedMessage = "Upstream node failed"

// CycleError reports that a plan could not order every executable node.
// It does not identify which nodes form the cycle.
type CycleError struct {
	// Planned is the number of nodes that could be ordered.
	Planned int
	// Executable is the number of executable nodes in the graph.
	Executable int
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("graph contains a cycle (ordered %d of %d nodes); remove circular connections", e.Planned, e.Executable)
}

// Unwrap returns ErrCycle for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// NodeError wraps a failure inside a single node's executor.
// It never escapes the Runner; it is carried by a failed Result.
type NodeError struct {
	// NodeID is the node that failed.
	NodeID string
	// Op is the operation that failed ("execute", "upstream").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures a panic raised by an executor.
type PanicError struct {
	// NodeID is the node whose executor panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}
