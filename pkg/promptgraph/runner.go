package promptgraph

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph/observability"
)

// StatusFunc receives every node status transition. out is non-nil only
// for terminal statuses that carry an output. It is called synchronously
// from the Runner's loop, so it must not block for long.
type StatusFunc func(nodeID string, status Status, out *NodeOutput)

// RunRequest is one invocation of the Runner.
type RunRequest struct {
	// RunID identifies the run in logs and spans. Generated when empty.
	RunID string

	// FlowID is used for logging and tracing only.
	FlowID string

	// Steps is the plan to execute, usually from BuildPlan.
	Steps []ExecutionStep

	// Nodes supplies each step's data. It may contain more nodes than Steps.
	Nodes []Node

	// ProviderID is the flow-level fallback provider.
	ProviderID string

	// Cached seeds the output map so predecessors outside Steps can be read
	// without re-executing them.
	Cached map[string]NodeOutput
}

// Runner drives node executors over a plan. A Runner holds no state
// between calls and may be reused.
//
// Steps run strictly one at a time, in plan order, even when two steps are
// independent. A node error never aborts the run: it is recorded as the
// node's output and every node downstream of it fails with
// UpstreamFailedMessage without its executor being called.
//
// There is no mid-run cancellation. ctx is passed to executors for their
// own I/O but the loop does not stop when it is cancelled.
type Runner struct {
	cfg runnerConfig
}

// NewRunner creates a Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	cfg := defaultRunnerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{cfg: cfg}
}

// Run executes req.Steps and returns the outputs of every node, including
// the cached ones. The only errors returned are structural: ErrEmptyGraph
// when there is nothing to run.
func (r *Runner) Run(ctx context.Context, req RunRequest, onStatus StatusFunc) (map[string]NodeOutput, error) {
	if onStatus == nil {
		onStatus = func(string, Status, *NodeOutput) {}
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	// The run helpers log run_id themselves; node lines get it from logger.
	runLogger := r.cfg.logger
	if req.FlowID != "" {
		runLogger = runLogger.With("flow_id", req.FlowID)
	}
	logger := runLogger.With("run_id", runID)

	if len(req.Steps) == 0 {
		observability.LogRunError(runLogger, runID, ErrEmptyGraph)
		r.cfg.metrics.RecordRun(ctx, false, 0, 0)
		return nil, ErrEmptyGraph
	}

	start := time.Now()
	observability.LogRunStart(runLogger, runID, len(req.Steps))

	runCtx := ctx
	var runSpan trace.Span
	if r.cfg.tracing {
		runCtx, runSpan = r.cfg.spans.StartRunSpan(ctx, req.FlowID, runID, len(req.Steps))
		defer r.cfg.spans.EndSpanWithError(runSpan, nil)
	}

	outputs := make(map[string]NodeOutput, len(req.Steps)+len(req.Cached))
	for id, out := range req.Cached {
		outputs[id] = out
	}

	nodes := make(map[string]Node, len(req.Nodes))
	for _, n := range req.Nodes {
		if _, dup := nodes[n.ID]; !dup {
			nodes[n.ID] = n
		}
	}

	for _, step := range req.Steps {
		onStatus(step.NodeID, StatusPending, nil)
	}

	var executed, failed int
	for _, step := range req.Steps {
		status := r.runStep(runCtx, logger, step, nodes, req.ProviderID, outputs, onStatus)
		switch status {
		case StatusComplete:
			executed++
		case StatusError:
			executed++
			failed++
		}
	}

	duration := time.Since(start)
	r.cfg.metrics.RecordRun(ctx, true, len(req.Steps), duration)
	observability.LogRunComplete(runLogger, runID, float64(duration.Milliseconds()), executed, failed)

	return outputs, nil
}

// runStep takes one step through pending → running → terminal and records
// its output. It returns the terminal status.
func (r *Runner) runStep(
	ctx context.Context,
	logger *slog.Logger,
	step ExecutionStep,
	nodes map[string]Node,
	globalProvider string,
	outputs map[string]NodeOutput,
	onStatus StatusFunc,
) Status {
	exec, ok := r.cfg.registry.Lookup(step.NodeType)
	node, found := nodes[step.NodeID]
	if !ok || !found {
		observability.LogNodeSkipped(logger, step.NodeID, string(step.NodeType))
		r.cfg.metrics.RecordNodeExecution(ctx, string(step.NodeType), string(StatusSkipped), 0)
		onStatus(step.NodeID, StatusSkipped, nil)
		return StatusSkipped
	}

	if upstreamFailed(step, outputs) {
		out := NodeOutput{Error: UpstreamFailedMessage}
		outputs[step.NodeID] = out
		observability.LogNodeError(logger, step.NodeID, ErrUpstreamFailed, true)
		r.cfg.metrics.RecordNodeExecution(ctx, string(step.NodeType), string(StatusError), 0)
		onStatus(step.NodeID, StatusError, &out)
		return StatusError
	}

	onStatus(step.NodeID, StatusRunning, nil)
	observability.LogNodeStart(logger, step.NodeID, string(step.NodeType))

	resolved := r.cfg.resolver.Resolve(step.NodeType, node.Data, globalProvider)
	in := Input{
		NodeID:        step.NodeID,
		Data:          node.Data,
		Inputs:        collect(step.InputNodeIDs, outputs),
		AdapterInputs: collect(step.AdapterNodeIDs, outputs),
		ProviderID:    resolved.ProviderID,
		Model:         resolved.Model,
	}

	nodeCtx := ctx
	var span trace.Span
	if r.cfg.tracing {
		nodeCtx, span = r.cfg.spans.StartNodeSpan(ctx, step.NodeID, string(step.NodeType))
	}

	started := time.Now()
	result := r.execute(nodeCtx, step.NodeID, exec, in)
	duration := time.Since(started)

	out := result.Output()
	outputs[step.NodeID] = out

	status := StatusComplete
	if err := result.Err(); err != nil {
		status = StatusError
		observability.LogNodeError(logger, step.NodeID, &NodeError{NodeID: step.NodeID, Op: "execute", Err: err}, false)
	} else {
		observability.LogNodeComplete(logger, step.NodeID, float64(duration.Milliseconds()))
	}

	if r.cfg.tracing {
		r.cfg.spans.EndSpanWithError(span, result.Err())
	}
	r.cfg.metrics.RecordNodeExecution(ctx, string(step.NodeType), string(status), duration)

	onStatus(step.NodeID, status, &out)
	return status
}

// execute calls the executor, converting a panic into a failed Result.
func (r *Runner) execute(ctx context.Context, nodeID string, exec Executor, in Input) (result Result) {
	defer func() {
		if v := recover(); v != nil {
			result = Fail(NodeOutput{}, &PanicError{
				NodeID: nodeID,
				Value:  v,
				Stack:  string(debug.Stack()),
			})
		}
	}()
	return exec(ctx, in)
}

// upstreamFailed reports whether any text or adapter predecessor has a
// recorded error.
func upstreamFailed(step ExecutionStep, outputs map[string]NodeOutput) bool {
	for _, ids := range [][]string{step.InputNodeIDs, step.AdapterNodeIDs} {
		for _, id := range ids {
			if out, ok := outputs[id]; ok && out.Failed() {
				return true
			}
		}
	}
	return false
}

// collect gathers the outputs of ids in order, dropping ids with no output.
func collect(ids []string, outputs map[string]NodeOutput) []NodeOutput {
	out := make([]NodeOutput, 0, len(ids))
	for _, id := range ids {
		if o, ok := outputs[id]; ok {
			out = append(out, o)
		}
	}
	return out
}
