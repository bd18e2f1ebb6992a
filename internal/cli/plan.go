package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph"
)

var stepHeaders = []string{"STEP", "NODE", "TYPE", "INPUTS", "ADAPTERS"}

func newPlanCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "plan FLOW",
		Short: "Print the execution plan of a flow",
		Args:  cobra.ExactArgs(1),
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

			steps, err := promptgraph.BuildPlan(rec.Nodes, rec.Edges)
			if err != nil {
				return err
			}
			return e.output(cmd).Print(stepHeaders, stepRows(steps), steps)
		},
	}
}

func newSelectCmd(e *env) *cobra.Command {
	var cached []string

	cmd := &cobra.Command{
		Use:   "select FLOW NODE",
		Short: "Print the nodes a run from NODE would execute",
		Long: `Print the nodes a run from NODE would execute, in plan order.

Nodes named with --cached are treated as having a usable output from an
earlier run; every other upstream node is re-run.`,
		Args: cobra.ExactArgs(2),
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

			trigger := args[1]
			if _, ok := promptgraph.FindNode(rec.Nodes, trigger); !ok {
				return fmt.Errorf("select %s: %w", trigger, promptgraph.ErrNodeNotFound)
			}

			existing := make(map[string]promptgraph.NodeOutput, len(cached))
			for _, id := range cached {
				existing[id] = promptgraph.NodeOutput{Text: "cached"}
			}
			selected := promptgraph.SelectExecutionSet(trigger, rec.Nodes, rec.Edges, existing)

			steps, err := promptgraph.BuildPlan(promptgraph.FilterNodes(rec.Nodes, selected), rec.Edges)
			if err != nil {
				return err
			}
			return e.output(cmd).Print(stepHeaders, stepRows(steps), steps)
		},
	}

	cmd.Flags().StringSliceVar(&cached, "cached", nil, "Node IDs with a usable output (comma separated)")
	return cmd
}

func stepRows(steps []promptgraph.ExecutionStep) [][]string {
	rows := make([][]string, len(steps))
	for i, s := range steps {
		rows[i] = []string{
			strconv.Itoa(i + 1),
			s.NodeID,
			string(s.NodeType),
			joinIDs(s.InputNodeIDs),
			joinIDs(s.AdapterNodeIDs),
		}
	}
	return rows
}

func joinIDs(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ",")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
