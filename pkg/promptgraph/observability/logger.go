// Package observability provides structured logging, metrics, and tracing
// for the promptgraph engine.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations.
package observability

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// EnrichLogger adds run and node context to a logger.
func EnrichLogger(logger *slog.Logger, runID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a run.
func LogRunStart(logger *slog.Logger, runID string, steps int) {
	if logger == nil {
		return
	}
	logger.Info("run starting",
		slog.String("run_id", runID),
		slog.Int("steps", steps),
	)
}

// LogRunComplete logs a finished run. A run with failed nodes still
// completes; failed counts them.
func LogRunComplete(logger *slog.Logger, runID string, durationMs float64, executed, failed int) {
	if logger == nil {
		return
	}
	logger.Info("run completed",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("nodes_executed", executed),
		slog.Int("nodes_failed", failed),
	)
}

// LogRunError logs a run rejected before any node executed.
func LogRunError(logger *slog.Logger, runID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("run failed",
		slog.String("run_id", runID),
		slog.String("error", err.Error()),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeSkipped logs a node with no registered executor.
func LogNodeSkipped(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node skipped",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogNodeError logs a node failure. upstream is true when the node never
// ran because a predecessor failed.
func LogNodeError(logger *slog.Logger, nodeID string, err error, upstream bool) {
	if logger == nil {
		return
	}
	level := slog.LevelError
	if upstream {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
		slog.Bool("upstream", upstream),
	)
}

// LogFlowSaved logs a persisted flow.
func LogFlowSaved(logger *slog.Logger, flowID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("flow saved",
		slog.String("flow_id", flowID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogSaveError logs a failed save. Saves are retried on the next change.
func LogSaveError(logger *slog.Logger, flowID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("flow save failed",
		slog.String("flow_id", flowID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}

// LogLevel reads the level from LOG_LEVEL (DEBUG, INFO, WARN, ERROR).
// Defaults to INFO.
func LogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger builds the process logger and installs it as slog's default.
// LOG_FORMAT=text selects a text handler; JSON is the default.
func SetupLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     LogLevel(),
		AddSource: LogLevel() == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
