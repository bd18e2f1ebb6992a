package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/event"
)

// Run executes the whole flow. The previous execution state is cleared
// first. Node failures are recorded in the execution state and do not
// make Run fail; a structural failure (cycle, nothing to run) is recorded
// as the GlobalError and returned.
//
// Run blocks until the run finishes. Calling Run or RunFrom while a run is
// in progress returns ErrAlreadyRunning.
func (f *Flow) Run(ctx context.Context) error {
	f.mu.Lock()
	if err := f.startLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	nodes := promptgraph.CloneNodes(f.nodes)
	edges := promptgraph.CloneEdges(f.edges)
	provider := f.providerID
	f.state = promptgraph.NewExecutionState()
	f.state.IsRunning = true
	f.mu.Unlock()

	f.publish(ctx, event.New(event.ExecutionStarted, f.id))

	steps, err := promptgraph.BuildPlan(nodes, edges)
	if err == nil {
		_, err = f.orch.runner.Run(ctx, promptgraph.RunRequest{
			FlowID:     f.id,
			Steps:      steps,
			Nodes:      nodes,
			ProviderID: provider,
		}, f.onStatus(ctx))
	}
	return f.finish(ctx, err)
}

// RunFrom re-executes the part of the flow affected by nodeID: the node,
// everything downstream of it, ancestors without a usable output, and the
// adapter sources feeding any of those. Every other node keeps its status
// and output, and its output is handed to the Runner as cache.
func (f *Flow) RunFrom(ctx context.Context, nodeID string) error {
	f.mu.Lock()
	if err := f.startLocked(); err != nil {
		f.mu.Unlock()
		return err
	}
	if _, ok := promptgraph.FindNode(f.nodes, nodeID); !ok {
		f.mu.Unlock()
		return fmt.Errorf("run from: %w: %s", promptgraph.ErrNodeNotFound, nodeID)
	}
	nodes := promptgraph.CloneNodes(f.nodes)
	edges := promptgraph.CloneEdges(f.edges)
	provider := f.providerID

	selected := promptgraph.SelectExecutionSet(nodeID, nodes, edges, f.state.NodeOutputs)
	cached := make(map[string]promptgraph.NodeOutput, len(f.state.NodeOutputs))
	for id, out := range f.state.NodeOutputs {
		if !selected[id] {
			cached[id] = out
		}
	}

	// A plan that cannot be built leaves every status and output as it was.
	steps, planErr := promptgraph.BuildPlan(promptgraph.FilterNodes(nodes, selected), edges)
	if planErr == nil && len(steps) == 0 {
		planErr = promptgraph.ErrEmptyGraph
	}
	if planErr == nil {
		for _, n := range nodes {
			if selected[n.ID] && !n.IsContainer() {
				delete(f.state.NodeOutputs, n.ID)
				f.state.NodeStatus[n.ID] = promptgraph.StatusPending
			}
		}
	}
	f.state.GlobalError = ""
	f.state.IsRunning = true
	f.mu.Unlock()

	f.orch.logger.Debug("partial run selected",
		slog.String("flow_id", f.id),
		slog.String("trigger", nodeID),
		slog.Int("selected", len(selected)),
		slog.Int("cached", len(cached)),
	)
	f.publish(ctx, event.New(event.ExecutionStarted, f.id, event.WithNodeStatus(nodeID, promptgraph.StatusPending, nil)))

	if planErr != nil {
		return f.finish(ctx, planErr)
	}
	_, err := f.orch.runner.Run(ctx, promptgraph.RunRequest{
		FlowID:     f.id,
		Steps:      steps,
		Nodes:      nodes,
		ProviderID: provider,
		Cached:     cached,
	}, f.onStatus(ctx))
	return f.finish(ctx, err)
}

// IsRunning reports whether a run is in progress.
func (f *Flow) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.IsRunning
}

func (f *Flow) startLocked() error {
	if f.closed {
		return ErrFlowClosed
	}
	if f.state.IsRunning {
		return ErrAlreadyRunning
	}
	return nil
}

// onStatus records a Runner transition in the execution state and
// republishes it. A finished textOutput node's text is written back into
// its data so the canvas shows it; that write is not an undo step.
func (f *Flow) onStatus(ctx context.Context) promptgraph.StatusFunc {
	return func(nodeID string, status promptgraph.Status, out *promptgraph.NodeOutput) {
		f.mu.Lock()
		f.state.NodeStatus[nodeID] = status
		if out != nil {
			f.state.NodeOutputs[nodeID] = *out
		}
		wrote := false
		if status.Terminal() && out != nil && out.Text != "" {
			wrote = f.writeBackLocked(nodeID, out.Text)
		}
		f.mu.Unlock()

		f.publish(ctx, event.New(event.ExecutionNodeStatus, f.id, event.WithNodeStatus(nodeID, status, out)))
		if wrote {
			f.publish(ctx, event.New(event.FlowDirty, f.id))
		}
	}
}

func (f *Flow) writeBackLocked(nodeID, text string) bool {
	n, ok := promptgraph.FindNode(f.nodes, nodeID)
	if !ok || n.Type != promptgraph.TypeTextOutput {
		return false
	}
	data, _ := n.Data.(promptgraph.TextOutputData)
	if data.Text == text {
		return false
	}
	data.Text = text
	err := f.updateNodeLocked(nodeID, func(n *promptgraph.Node) error {
		n.Data = data
		return nil
	})
	if err != nil {
		return false
	}
	f.touchLocked()
	return true
}

// finish clears the running flag, records a structural error and
// publishes the closing event.
func (f *Flow) finish(ctx context.Context, err error) error {
	f.mu.Lock()
	f.state.IsRunning = false
	if err != nil {
		f.state.GlobalError = err.Error()
	}
	f.mu.Unlock()

	if err != nil {
		f.orch.logger.Warn("run failed", slog.String("flow_id", f.id), slog.String("error", err.Error()))
		f.publish(ctx, event.New(event.ExecutionError, f.id, event.WithError(err.Error())))
		return err
	}
	f.publish(ctx, event.New(event.ExecutionCompleted, f.id))
	return nil
}
