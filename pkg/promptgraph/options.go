package promptgraph

import (
	"log/slog"

	"github.com/randalmurphal/promptgraph/pkg/promptgraph/observability"
)

// runnerConfig holds configuration for a Runner.
type runnerConfig struct {
	registry *Registry
	resolver Resolver
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	tracing  bool
}

func defaultRunnerConfig() runnerConfig {
	return runnerConfig{
		registry: NewRegistry(),
		resolver: DefaultModels(),
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
}

// RunnerOption configures a Runner.
type RunnerOption func(*runnerConfig)

// WithRegistry sets the executor registry.
func WithRegistry(r *Registry) RunnerOption {
	return func(c *runnerConfig) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithResolver sets the provider/model resolver.
// Default: DefaultModels().
func WithResolver(r Resolver) RunnerOption {
	return func(c *runnerConfig) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(c *runnerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics for runs and nodes.
func WithMetrics(enabled bool) RunnerOption {
	return func(c *runnerConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans for runs and nodes.
func WithTracing(enabled bool) RunnerOption {
	return func(c *runnerConfig) {
		c.tracing = enabled
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}
