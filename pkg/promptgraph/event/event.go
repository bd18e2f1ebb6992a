// Package event provides the synchronous event bus that announces flow
// lifecycle and execution progress to the rest of the application.
//
// Publishing is synchronous: every handler has returned before Publish
// does. Execution status events are therefore observed in exactly the
// order the Runner produced them.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
)

// Type names an event.
type Type string

// Flow lifecycle events.
const (
	FlowCreated  Type = "flow:created"
	FlowClosed   Type = "flow:closed"
	FlowSwitched Type = "flow:switched"
	FlowRenamed  Type = "flow:renamed"
	FlowDirty    Type = "flow:dirty"
	FlowSaved    Type = "flow:saved"
)

// Execution events.
const (
	ExecutionStarted    Type = "execution:started"
	ExecutionNodeStatus Type = "execution:node-status"
	ExecutionCompleted  Type = "execution:completed"
	ExecutionError      Type = "execution:error"
)

// Event is a single published event. Fields that do not apply to the
// event's type are empty.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	FlowID    string    `json:"flowId"`
	Timestamp time.Time `json:"timestamp"`

	// Name is set for flow:created and flow:renamed.
	Name string `json:"name,omitempty"`

	// NodeID, Status and Output are set for execution:node-status.
	NodeID string                  `json:"nodeId,omitempty"`
	Status promptgraph.Status      `json:"status,omitempty"`
	Output *promptgraph.NodeOutput `json:"output,omitempty"`

	// Error is set for execution:error.
	Error string `json:"error,omitempty"`
}

// Option configures a new Event.
type Option func(*Event)

// WithName sets the flow name.
func WithName(name string) Option {
	return func(e *Event) { e.Name = name }
}

// WithNodeStatus sets the node status fields.
func WithNodeStatus(nodeID string, status promptgraph.Status, out *promptgraph.NodeOutput) Option {
	return func(e *Event) {
		e.NodeID = nodeID
		e.Status = status
		if out != nil {
			o := *out
			e.Output = &o
		}
	}
}

// WithError sets the error message.
func WithError(msg string) Option {
	return func(e *Event) { e.Error = msg }
}

// WithTimestamp overrides the timestamp (default: time.Now()).
func WithTimestamp(t time.Time) Option {
	return func(e *Event) { e.Timestamp = t }
}

// New creates an event for a flow.
func New(t Type, flowID string, opts ...Option) Event {
	e := Event{
		ID:        uuid.New().String(),
		Type:      t,
		FlowID:    flowID,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// String returns the JSON form, for logging.
func (e Event) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return string(e.Type)
	}
	return string(b)
}
