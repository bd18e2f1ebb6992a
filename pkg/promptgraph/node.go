package promptgraph

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NodeType selects the executor for a node.
type NodeType string

// Built-in node types.
const (
	TypeInitialPrompt       NodeType = "initialPrompt"
	TypePromptEnhancer      NodeType = "promptEnhancer"
	TypeTranslator          NodeType = "translator"
	TypeImageDescriber      NodeType = "imageDescriber"
	TypeTextOutput          NodeType = "textOutput"
	TypeConsistentCharacter NodeType = "consistentCharacter"
	TypeStoryTeller         NodeType = "storyTeller"
	TypeGrammarFix          NodeType = "grammarFix"
	TypeCompressor          NodeType = "compressor"
	TypeImageGenerator      NodeType = "imageGenerator"
	TypePersonasReplacer    NodeType = "personasReplacer"

	// TypeGroup is a layout container. Groups are never executed.
	TypeGroup NodeType = "group"
)

// AdapterHandlePrefix marks a target handle as an adapter input.
const AdapterHandlePrefix = "adapter-"

// Position is a node's canvas position. For nodes with a parent it is
// relative to the parent.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a single processing step on the canvas.
//
// ParentID references a container node. The container owns the layout
// position only; removing a container does not remove its children.
type Node struct {
	ID       string
	Type     NodeType
	Data     NodeData
	ParentID string
	Position Position
}

// IsContainer reports whether the node is a layout container.
func (n Node) IsContainer() bool {
	return n.Type == TypeGroup
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	if n.Data != nil {
		n.Data = n.Data.Clone()
	}
	return n
}

type nodeJSON struct {
	ID       string          `json:"id"`
	Type     NodeType        `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	ParentID string          `json:"parentId,omitempty"`
	Position Position        `json:"position"`
}

// MarshalJSON encodes the node in canvas format.
func (n Node) MarshalJSON() ([]byte, error) {
	var data json.RawMessage
	if n.Data != nil {
		raw, err := json.Marshal(n.Data)
		if err != nil {
			return nil, fmt.Errorf("encode data for node %s: %w", n.ID, err)
		}
		data = raw
	}
	return json.Marshal(nodeJSON{
		ID:       n.ID,
		Type:     n.Type,
		Data:     data,
		ParentID: n.ParentID,
		Position: n.Position,
	})
}

// UnmarshalJSON decodes a canvas node, selecting the data variant by type.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := DecodeNodeData(raw.Type, raw.Data)
	if err != nil {
		return fmt.Errorf("decode data for node %s: %w", raw.ID, err)
	}
	*n = Node{
		ID:       raw.ID,
		Type:     raw.Type,
		Data:     data,
		ParentID: raw.ParentID,
		Position: raw.Position,
	}
	return nil
}

// Edge connects two nodes. The edge class is derived from TargetHandle.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// IsAdapter reports whether the edge feeds an adapter handle.
// Adapter edges are many-to-one side channels (e.g. persona injection).
func (e Edge) IsAdapter() bool {
	return strings.HasPrefix(e.TargetHandle, AdapterHandlePrefix)
}

// IsText reports whether the edge is a primary text edge.
func (e Edge) IsText() bool {
	return !e.IsAdapter()
}

// ExecutionStep is the compiled unit consumed by the Runner.
type ExecutionStep struct {
	NodeID         string   `json:"nodeId"`
	NodeType       NodeType `json:"nodeType"`
	InputNodeIDs   []string `json:"inputNodeIds"`
	AdapterNodeIDs []string `json:"adapterNodeIds"`
}

// NodeOutput is what an executor produces. An empty Error means success.
type NodeOutput struct {
	Text               string `json:"text,omitempty"`
	Image              string `json:"image,omitempty"`
	PersonaDescription string `json:"personaDescription,omitempty"`
	PersonaName        string `json:"personaName,omitempty"`
	Error              string `json:"error,omitempty"`
	DurationMs         int64  `json:"durationMs,omitempty"`
}

// Failed reports whether the output records an error.
func (o NodeOutput) Failed() bool {
	return o.Error != ""
}

// Status is a node's execution status within a run.
type Status string

// Node statuses. StatusIdle is the rest state before any run and is
// never emitted by the Runner.
const (
	StatusIdle     Status = "idle"
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusSkipped  Status = "skipped"
)

// Terminal reports whether no further transitions follow in this run.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusError, StatusSkipped:
		return true
	}
	return false
}

// ExecutionState is the per-flow execution view rendered by the UI.
type ExecutionState struct {
	IsRunning   bool                  `json:"isRunning"`
	NodeStatus  map[string]Status     `json:"nodeStatus"`
	NodeOutputs map[string]NodeOutput `json:"nodeOutputs"`
	GlobalError string                `json:"globalError,omitempty"`
}

// NewExecutionState returns an empty state.
func NewExecutionState() ExecutionState {
	return ExecutionState{
		NodeStatus:  make(map[string]Status),
		NodeOutputs: make(map[string]NodeOutput),
	}
}

// Clone returns a deep copy of the state.
func (s ExecutionState) Clone() ExecutionState {
	out := ExecutionState{
		IsRunning:   s.IsRunning,
		GlobalError: s.GlobalError,
		NodeStatus:  make(map[string]Status, len(s.NodeStatus)),
		NodeOutputs: make(map[string]NodeOutput, len(s.NodeOutputs)),
	}
	for k, v := range s.NodeStatus {
		out.NodeStatus[k] = v
	}
	for k, v := range s.NodeOutputs {
		out.NodeOutputs[k] = v
	}
	return out
}

// FlowRecord is the serializable form of a flow handed to persistence.
// Runtime execution state is not part of it.
type FlowRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Nodes      []Node    `json:"nodes"`
	Edges      []Edge    `json:"edges"`
	ProviderID string    `json:"providerId"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CloneNodes deep-copies a node slice.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// CloneEdges copies an edge slice.
func CloneEdges(edges []Edge) []Edge {
	if edges == nil {
		return nil
	}
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}
