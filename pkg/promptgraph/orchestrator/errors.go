package orchestrator

import "errors"

// Sentinel errors returned by the Orchestrator and Flow.
var (
	// ErrFlowNotFound indicates a flow ID that is not open.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowExists indicates a load of a flow that is already open.
	ErrFlowExists = errors.New("flow already open")

	// ErrFlowClosed is returned by operations on a closed flow.
	ErrFlowClosed = errors.New("flow is closed")

	// ErrAlreadyRunning is returned when a run is requested, or the flow
	// is closed, while a run is in progress.
	ErrAlreadyRunning = errors.New("flow is already running")

	// ErrDuplicateNode indicates an added node reuses an existing ID.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrInvalidNode indicates a node without an ID or type.
	ErrInvalidNode = errors.New("invalid node")

	// ErrInvalidEdge indicates an edge with a missing endpoint or a
	// self-loop.
	ErrInvalidEdge = errors.New("invalid edge")

	// ErrEdgeNotFound indicates an edge ID that is not in the flow.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrNotContainer indicates a parent that is not a group node.
	ErrNotContainer = errors.New("parent is not a container")

	// ErrTypeMismatch indicates node data of a different type than the node.
	ErrTypeMismatch = errors.New("node data type mismatch")
)
