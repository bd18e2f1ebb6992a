package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/event"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/flowstore"
	"github.com/randalmurphal/promptgraph/pkg/promptgraph/orchestrator"
)

// ErrNodesFailed is returned when a run completes with failed nodes.
var ErrNodesFailed = errors.New("nodes failed")

var stateHeaders = []string{"NODE", "TYPE", "STATUS", "MS", "OUTPUT"}

func newRunCmd(e *env) *cobra.Command {
	var from string
	var save bool

	cmd := &cobra.Command{
		Use:   "run FLOW",
		Short: "Execute a flow",
		Long: `Execute a flow and print each node's status and output.

With --from, only NODE, everything downstream of it and the upstream nodes
it needs are executed. With --save, text written back into textOutput nodes
is persisted to the flow store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := e.config()
			if err != nil {
				return err
			}
			rec, err := e.loadRecord(ctx, cfg, args[0])
			if err != nil {
				return err
			}

			out := e.output(cmd)
			orch := e.orchestrator(cfg)

			if save {
				store, err := e.openStore(ctx, cfg)
				if err != nil {
					return err
				}
				defer store.Close()
				saver := flowstore.NewAutoSaver(store, orch,
					flowstore.WithDelay(cfg.AutoSave.Delay),
					flowstore.WithLogger(e.logger),
					flowstore.WithMetrics(e.metrics(cfg)),
				)
				saver.Start()
				defer saver.Stop()
			}

			state, runErr := e.runFlow(ctx, orch, rec, from, out)
			if err := out.Print(stateHeaders, stateRows(rec.Nodes, state), state); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Run from this node only")
	cmd.Flags().BoolVar(&save, "save", false, "Persist text output write-back to the flow store")
	return cmd
}

// runFlow opens rec in orch, runs it and closes it again. Closing the flow
// lets an AutoSaver persist pending changes.
func (e *env) runFlow(ctx context.Context, orch *orchestrator.Orchestrator, rec promptgraph.FlowRecord, from string, out *Output) (promptgraph.ExecutionState, error) {
	f, err := orch.LoadFlow(ctx, rec)
	if err != nil {
		return promptgraph.ExecutionState{}, err
	}
	defer func() {
		if err := orch.CloseFlow(ctx, f.ID()); err != nil {
			e.logger.Warn("close flow failed", slog.String("flow_id", f.ID()), slog.String("error", err.Error()))
		}
	}()

	sub := orch.Bus().Subscribe([]event.Type{event.ExecutionNodeStatus}, func(_ context.Context, evt event.Event) {
		if evt.FlowID == f.ID() && evt.Status.Terminal() {
			out.Info(fmt.Sprintf("%-10s %s", evt.Status, evt.NodeID))
		}
	})
	defer sub.Unsubscribe()

	if from != "" {
		err = f.RunFrom(ctx, from)
	} else {
		err = f.Run(ctx)
	}
	state := f.ExecutionState()
	if err != nil {
		return state, err
	}

	failed := 0
	for _, s := range state.NodeStatus {
		if s == promptgraph.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return state, fmt.Errorf("%d %w", failed, ErrNodesFailed)
	}
	return state, nil
}

// stateRows lists nodes that have a status this run, in canvas order.
func stateRows(nodes []promptgraph.Node, state promptgraph.ExecutionState) [][]string {
	rows := make([][]string, 0, len(state.NodeStatus))
	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		seen[n.ID] = true
		if status, ok := state.NodeStatus[n.ID]; ok {
			rows = append(rows, stateRow(n.ID, string(n.Type), status, state.NodeOutputs[n.ID]))
		}
	}
	for _, id := range sortedKeys(state.NodeStatus) {
		if !seen[id] {
			rows = append(rows, stateRow(id, "-", state.NodeStatus[id], state.NodeOutputs[id]))
		}
	}
	return rows
}

func stateRow(id, nodeType string, status promptgraph.Status, out promptgraph.NodeOutput) []string {
	text := out.Text
	if out.Failed() {
		text = out.Error
	}
	ms := "-"
	if out.DurationMs > 0 {
		ms = strconv.FormatInt(out.DurationMs, 10)
	}
	return []string{id, nodeType, string(status), ms, truncate(text, 60)}
}
