/*
Package promptgraph provides the execution engine for prompt-processing flows.

# Overview

A flow is a directed graph of nodes (prompt enhancers, translators, story
tellers, image generators, ...) connected by edges. promptgraph compiles a
flow into an ordered plan and drives one executor per node over that plan,
reporting every status transition to the caller.

Two classes of edge exist. The class is derived from the edge's target
handle, not stored:

  - Text edges carry a node's main input.
  - Adapter edges (target handle prefixed with "adapter-") carry side data,
    such as a persona, delivered as a separate input list.

Both classes count toward ordering, so an adapter source always runs before
its consumer.

# Planning

BuildPlan runs Kahn's algorithm over the non-container nodes. Ties are
broken by the order nodes appear in the input slice, so the same flow
always yields the same plan:

	steps, err := promptgraph.BuildPlan(nodes, edges)
	if errors.Is(err, promptgraph.ErrCycle) {
	    // the graph cannot be ordered
	}

# Running

Register an executor per node type and run the plan:

	reg := promptgraph.NewRegistry().
	    Register(promptgraph.TypeTextOutput, func(ctx context.Context, in promptgraph.Input) promptgraph.Result {
	        return promptgraph.Ok(promptgraph.NodeOutput{Text: in.Inputs[0].Text})
	    })

	runner := promptgraph.NewRunner(promptgraph.WithRegistry(reg))
	outputs, err := runner.Run(ctx, promptgraph.RunRequest{
	    Steps: steps,
	    Nodes: nodes,
	}, func(id string, s promptgraph.Status, out *promptgraph.NodeOutput) {
	    fmt.Println(id, s)
	})

Steps run one at a time. A failing node does not stop the run; its
descendants finish with UpstreamFailedMessage and their executors are not
called. Node types without an executor are skipped.

# Partial Runs

SelectExecutionSet chooses the nodes that must re-run when a run is started
from a single node: everything downstream of it, any upstream node without
a usable cached output, and every adapter source feeding the selection.
Pass FilterNodes(nodes, set) to BuildPlan together with the full edge list.

# Subpackages

  - undo: per-flow undo/redo history with debounce and batch coalescing
  - orchestrator: per-flow state, mutations, and run selection
  - event: synchronous event bus for flow and execution events
  - flowstore: persistence for flow records (memory, SQLite, PostgreSQL)
  - executors: built-in executors backed by an llm.Client
  - llm: language model client interface and implementations
  - config: YAML/JSON engine configuration
  - observability: logging, metrics, and tracing helpers
*/
package promptgraph
