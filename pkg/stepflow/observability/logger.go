// Package observability provides structured logging, metrics, and
// tracing for the flow engine.
//
// Logging uses slog from the standard library; metrics and tracing use
// OpenTelemetry. Everything is opt-in with no-op implementations.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger carrying execution and step context.
func EnrichLogger(logger *slog.Logger, executionID, stepID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("execution_id", executionID),
		slog.String("step_id", stepID),
	)
}

// LogFlowStart logs the start of a flow run.
func LogFlowStart(logger *slog.Logger, flowID, executionID string) {
	if logger == nil {
		return
	}
	logger.Info("flow run starting",
		slog.String("flow_id", flowID),
		slog.String("execution_id", executionID),
	)
}

// LogFlowComplete logs a flow run that finished without step failures.
func LogFlowComplete(logger *slog.Logger, flowID string, durationMs int64, stepCount int) {
	if logger == nil {
		return
	}
	logger.Info("flow run completed",
		slog.String("flow_id", flowID),
		slog.Int64("duration_ms", durationMs),
		slog.Int("steps_executed", stepCount),
	)
}

// LogFlowError logs a flow run that recorded at least one step failure.
func LogFlowError(logger *slog.Logger, flowID string, err error, durationMs int64) {
	if logger == nil {
		return
	}
	logger.Error("flow run failed",
		slog.String("flow_id", flowID),
		slog.String("error", err.Error()),
		slog.Int64("duration_ms", durationMs),
	)
}

// LogFlowRejected emits the operator-visible record of a flow dropped
// at registration: a per-flow header followed by one line per invariant
// violation. This is the only externally observable signal that a flow
// was excluded from the registry.
func LogFlowRejected(logger *slog.Logger, flowID string, violations []string) {
	if logger == nil {
		return
	}
	logger.Warn("flow rejected by validation",
		slog.String("flow_id", flowID),
		slog.Int("violations", len(violations)),
	)
	for _, v := range violations {
		logger.Warn(v, slog.String("flow_id", flowID))
	}
}

// TimedOperation measures the duration of an operation.
// The returned function reports the elapsed time in milliseconds.
func TimedOperation() func() int64 {
	start := time.Now()
	return func() int64 {
		return time.Since(start).Milliseconds()
	}
}
