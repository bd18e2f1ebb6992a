// Package orchestrator owns the open flows of an editing session.
//
// Each Flow is an explicit per-flow context: its graph, its execution
// state and its undo History are created with the flow and released when
// it is closed. The Orchestrator tracks which flows are open and which one
// is active, and announces every change on an event.Bus.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/event"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/undo"
)

// DefaultProvider is the flow-level provider of a new flow.
const DefaultProvider = "mistral"

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus sets the event bus. Default: a new bus with flow:dirty and
// execution:node-status silenced.
func WithBus(bus *event.Bus) Option {
	return func(o *Orchestrator) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithRunner sets the Runner used by Run and RunFrom. Default: a Runner
// with an empty registry, which skips every node.
func WithRunner(r *promptgraph.Runner) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.runner = r
		}
	}
}

// WithUndoOptions sets the options of every flow's History.
func WithUndoOptions(opts ...undo.Option) Option {
	return func(o *Orchestrator) {
		o.undoOpts = append(o.undoOpts, opts...)
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDefaultProvider sets the provider of flows created by CreateFlow.
func WithDefaultProvider(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.defaultProvider = id
		}
	}
}

// WithNow sets the time source for flow timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator manages the open flows. It is safe for concurrent use.
type Orchestrator struct {
	bus             *event.Bus
	runner          *promptgraph.Runner
	undoOpts        []undo.Option
	logger          *slog.Logger
	defaultProvider string
	now             func() time.Time

	mu     sync.RWMutex
	flows  map[string]*Flow
	order  []string
	active string
}

// New creates an Orchestrator with no open flows.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		logger:          slog.Default(),
		defaultProvider: DefaultProvider,
		now:             time.Now,
		flows:           make(map[string]*Flow),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.bus == nil {
		o.bus = event.NewBus(event.BusConfig{Logger: o.logger}).
			Silence(event.FlowDirty, event.ExecutionNodeStatus)
	}
	if o.runner == nil {
		o.runner = promptgraph.NewRunner(promptgraph.WithLogger(o.logger))
	}
	return o
}

// Bus returns the event bus flows publish on.
func (o *Orchestrator) Bus() *event.Bus {
	return o.bus
}

// CreateFlow opens a new empty flow. The first open flow becomes active.
func (o *Orchestrator) CreateFlow(ctx context.Context, name string) *Flow {
	now := o.now()
	rec := promptgraph.FlowRecord{
		Name:       name,
		ProviderID: o.defaultProvider,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var f *Flow
	for f == nil {
		rec.ID = uuid.New().String()
		f, _ = o.open(rec)
	}
	o.logger.Info("flow created", slog.String("flow_id", f.id), slog.String("name", name))
	o.publish(ctx, event.New(event.FlowCreated, f.id, event.WithName(name)))
	return f
}

// LoadFlow opens a flow from its persisted record. The record is copied.
// A record without an ID gets a new one.
func (o *Orchestrator) LoadFlow(ctx context.Context, rec promptgraph.FlowRecord) (*Flow, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.ProviderID == "" {
		rec.ProviderID = o.defaultProvider
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = o.now()
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	f, err := o.open(rec)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", rec.ID, err)
	}
	o.logger.Info("flow loaded",
		slog.String("flow_id", f.id),
		slog.Int("nodes", len(rec.Nodes)),
		slog.Int("edges", len(rec.Edges)),
	)
	o.publish(ctx, event.New(event.FlowCreated, f.id, event.WithName(rec.Name)))
	return f, nil
}

// open registers a flow for rec. The ID check and the insert happen under
// one lock so concurrent loads of the same record cannot both succeed.
func (o *Orchestrator) open(rec promptgraph.FlowRecord) (*Flow, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.flows[rec.ID]; exists {
		return nil, ErrFlowExists
	}

	opts := append([]undo.Option{undo.WithLogger(o.logger)}, o.undoOpts...)
	f := newFlow(o, rec, undo.New(opts...))
	o.flows[f.id] = f
	o.order = append(o.order, f.id)
	if o.active == "" {
		o.active = f.id
	}
	return f, nil
}

// Flow returns an open flow.
func (o *Orchestrator) Flow(id string) (*Flow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	f, ok := o.flows[id]
	return f, ok
}

// Flows returns the open flows in the order they were opened.
func (o *Orchestrator) Flows() []*Flow {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Flow, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, o.flows[id])
	}
	return out
}

// ActiveFlow returns the active flow, if any flow is open.
func (o *Orchestrator) ActiveFlow() (*Flow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	f, ok := o.flows[o.active]
	return f, ok
}

// SwitchFlow makes an open flow active.
func (o *Orchestrator) SwitchFlow(ctx context.Context, id string) error {
	o.mu.Lock()
	if _, ok := o.flows[id]; !ok {
		o.mu.Unlock()
		return fmt.Errorf("switch %s: %w", id, ErrFlowNotFound)
	}
	changed := o.active != id
	o.active = id
	o.mu.Unlock()

	if changed {
		o.publish(ctx, event.New(event.FlowSwitched, id))
	}
	return nil
}

// CloseFlow closes a flow and releases its history and execution state.
// A running flow cannot be closed. When the active flow closes, the
// earliest remaining flow becomes active.
func (o *Orchestrator) CloseFlow(ctx context.Context, id string) error {
	o.mu.Lock()
	f, ok := o.flows[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("close %s: %w", id, ErrFlowNotFound)
	}
	if err := f.close(); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("close %s: %w", id, err)
	}

	delete(o.flows, id)
	for i, fid := range o.order {
		if fid == id {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
	switched := ""
	if o.active == id {
		o.active = ""
		if len(o.order) > 0 {
			o.active = o.order[0]
			switched = o.active
		}
	}
	o.mu.Unlock()

	o.logger.Info("flow closed", slog.String("flow_id", id))
	o.publish(ctx, event.New(event.FlowClosed, id))
	if switched != "" {
		o.publish(ctx, event.New(event.FlowSwitched, switched))
	}
	return nil
}

// publish sends evt, logging instead of failing when the bus is closed.
func (o *Orchestrator) publish(ctx context.Context, evt event.Event) {
	if err := o.bus.Publish(ctx, evt); err != nil {
		o.logger.Debug("event dropped", slog.String("event", string(evt.Type)), slog.String("error", err.Error()))
	}
}
