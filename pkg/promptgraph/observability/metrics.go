package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordNodeExecution records one executed node with its terminal status.
	RecordNodeExecution(ctx context.Context, nodeType, status string, duration time.Duration)

	// RecordRun records a finished or rejected run.
	RecordRun(ctx context.Context, success bool, steps int, duration time.Duration)

	// RecordFlowSave records a persistence attempt.
	RecordFlowSave(ctx context.Context, sizeBytes int64, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	nodeExecutions metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	nodeErrors     metric.Int64Counter
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	saveSize       metric.Int64Histogram
	saveErrors     metric.Int64Counter
}

// newOtelMetrics creates the instruments on the global meter provider.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("promptgraph")

	nodeExecutions, err := meter.Int64Counter("promptgraph.node.executions",
		metric.WithDescription("Number of node executions"),
	)
	if err != nil {
		return nil, err
	}

	nodeLatency, err := meter.Float64Histogram("promptgraph.node.latency_ms",
		metric.WithDescription("Node execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	nodeErrors, err := meter.Int64Counter("promptgraph.node.errors",
		metric.WithDescription("Number of nodes that ended in error"),
	)
	if err != nil {
		return nil, err
	}

	runs, err := meter.Int64Counter("promptgraph.runs",
		metric.WithDescription("Number of runs"),
	)
	if err != nil {
		return nil, err
	}

	runLatency, err := meter.Float64Histogram("promptgraph.run.latency_ms",
		metric.WithDescription("Run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	saveSize, err := meter.Int64Histogram("promptgraph.flow.save_bytes",
		metric.WithDescription("Size of saved flows in bytes"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	saveErrors, err := meter.Int64Counter("promptgraph.flow.save_errors",
		metric.WithDescription("Number of failed flow saves"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		nodeExecutions: nodeExecutions,
		nodeLatency:    nodeLatency,
		nodeErrors:     nodeErrors,
		runs:           runs,
		runLatency:     runLatency,
		saveSize:       saveSize,
		saveErrors:     saveErrors,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If instrument creation fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordNodeExecution records a node execution.
func (m *otelMetrics) RecordNodeExecution(ctx context.Context, nodeType, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("node_type", nodeType),
		attribute.String("status", status),
	)

	m.nodeExecutions.Add(ctx, 1, attrs)
	m.nodeLatency.Record(ctx, float64(duration.Milliseconds()), attrs)

	if status == "error" {
		m.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordRun records a run.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, steps int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Int("steps", steps),
	)
	m.runs.Add(ctx, 1, attrs)
	m.runLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordFlowSave records a flow save.
func (m *otelMetrics) RecordFlowSave(ctx context.Context, sizeBytes int64, err error) {
	if err != nil {
		m.saveErrors.Add(ctx, 1)
		return
	}
	m.saveSize.Record(ctx, sizeBytes)
}
