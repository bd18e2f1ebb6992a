package flowstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph/config"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/event"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/observability"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/orchestrator"
)

// AutoSaverOption configures an AutoSaver.
type AutoSaverOption func(*AutoSaver)

// WithDelay sets the quiet period after the last change before a flow is
// saved. Default: config.DefaultAutoSaveDelay.
func WithDelay(d time.Duration) AutoSaverOption {
	return func(a *AutoSaver) {
		if d > 0 {
			a.delay = d
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) AutoSaverOption {
	return func(a *AutoSaver) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the recorder for save metrics.
func WithMetrics(m observability.MetricsRecorder) AutoSaverOption {
	return func(a *AutoSaver) {
		if m != nil {
			a.metrics = m
		}
	}
}

// AutoSaver saves flows after they change. Each flow:dirty event restarts
// that flow's timer; the flow is saved once no change has arrived for the
// delay. A flow with a pending save is saved immediately when it closes.
//
// A failed save is logged and retried on the flow's next change.
type AutoSaver struct {
	store   Store
	orch    *orchestrator.Orchestrator
	delay   time.Duration
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu      sync.Mutex
	pending map[string]*pendingSave
	sub     event.Subscription
}

type pendingSave struct {
	flow  *orchestrator.Flow
	timer *time.Timer
}

// NewAutoSaver creates an AutoSaver. Call Start to begin listening.
func NewAutoSaver(store Store, orch *orchestrator.Orchestrator, opts ...AutoSaverOption) *AutoSaver {
	a := &AutoSaver{
		store:   store,
		orch:    orch,
		delay:   config.DefaultAutoSaveDelay,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		pending: make(map[string]*pendingSave),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start subscribes to the orchestrator's bus. Calling Start twice has no
// further effect.
func (a *AutoSaver) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub != nil {
		return
	}
	a.sub = a.orch.Bus().Subscribe([]event.Type{event.FlowDirty, event.FlowClosed}, a.handle)
}

// Stop unsubscribes and cancels pending saves without saving them. Use
// Flush first to persist outstanding changes.
func (a *AutoSaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sub != nil {
		a.sub.Unsubscribe()
		a.sub = nil
	}
	for id, p := range a.pending {
		p.timer.Stop()
		delete(a.pending, id)
	}
}

// Pending reports whether flowID has a scheduled save.
func (a *AutoSaver) Pending(flowID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.pending[flowID]
	return ok
}

// Flush saves every flow with a scheduled save now. It returns the first
// error; the remaining flows are still attempted.
func (a *AutoSaver) Flush(ctx context.Context) error {
	a.mu.Lock()
	flows := make([]*orchestrator.Flow, 0, len(a.pending))
	for id, p := range a.pending {
		p.timer.Stop()
		flows = append(flows, p.flow)
		delete(a.pending, id)
	}
	a.mu.Unlock()

	var first error
	for _, f := range flows {
		if err := a.Save(ctx, f); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Save persists f if it has unsaved changes and publishes flow:saved.
func (a *AutoSaver) Save(ctx context.Context, f *orchestrator.Flow) error {
	if !f.IsDirty() {
		return nil
	}

	rec, revision := f.Capture()
	size := 0
	if graph, err := encodeGraph(rec); err == nil {
		size = len(graph)
	}

	if err := a.store.Save(ctx, rec); err != nil {
		a.metrics.RecordFlowSave(ctx, 0, err)
		observability.LogSaveError(a.logger, rec.ID, err)
		return fmt.Errorf("autosave %s: %w", rec.ID, err)
	}

	f.MarkClean(revision)
	a.metrics.RecordFlowSave(ctx, int64(size), nil)
	observability.LogFlowSaved(a.logger, rec.ID, size)
	if err := a.orch.Bus().Publish(ctx, event.New(event.FlowSaved, rec.ID)); err != nil {
		a.logger.Debug("event dropped", slog.String("event", string(event.FlowSaved)), slog.String("error", err.Error()))
	}
	return nil
}

func (a *AutoSaver) handle(ctx context.Context, evt event.Event) {
	switch evt.Type {
	case event.FlowDirty:
		a.schedule(evt.FlowID)
	case event.FlowClosed:
		a.mu.Lock()
		p, ok := a.pending[evt.FlowID]
		if ok {
			p.timer.Stop()
			delete(a.pending, evt.FlowID)
		}
		a.mu.Unlock()
		if ok {
			_ = a.Save(ctx, p.flow)
		}
	}
}

func (a *AutoSaver) schedule(flowID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if p, ok := a.pending[flowID]; ok {
		p.timer.Reset(a.delay)
		return
	}
	f, ok := a.orch.Flow(flowID)
	if !ok {
		return
	}
	p := &pendingSave{flow: f}
	p.timer = time.AfterFunc(a.delay, func() { a.fire(flowID, p) })
	a.pending[flowID] = p
}

// fire runs on the timer goroutine. A timer that was replaced or stopped
// after it started firing finds a different entry and does nothing.
func (a *AutoSaver) fire(flowID string, p *pendingSave) {
	a.mu.Lock()
	if a.pending[flowID] != p {
		a.mu.Unlock()
		return
	}
	delete(a.pending, flowID)
	a.mu.Unlock()

	_ = a.Save(context.Background(), p.flow)
}
