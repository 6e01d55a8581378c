package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records engine metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStepExecution records one step execution with its duration
	// and error status.
	RecordStepExecution(ctx context.Context, stepID string, duration time.Duration, err error)

	// RecordFlowRun records a completed flow run.
	RecordFlowRun(ctx context.Context, flowID string, success bool, duration time.Duration)

	// RecordTokenUsage records token consumption of an llm step.
	RecordTokenUsage(ctx context.Context, model string, inputTokens, outputTokens int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	stepExecutions metric.Int64Counter
	stepLatency    metric.Float64Histogram
	stepErrors     metric.Int64Counter
	flowRuns       metric.Int64Counter
	flowLatency    metric.Float64Histogram
	llmTokens      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("stepflow")

	stepExecutions, err := meter.Int64Counter("stepflow.step.executions",
		metric.WithDescription("Number of step executions"),
	)
	if err != nil {
		return nil, err
	}

	stepLatency, err := meter.Float64Histogram("stepflow.step.latency_ms",
		metric.WithDescription("Step execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stepErrors, err := meter.Int64Counter("stepflow.step.errors",
		metric.WithDescription("Number of step execution errors"),
	)
	if err != nil {
		return nil, err
	}

	flowRuns, err := meter.Int64Counter("stepflow.flow.runs",
		metric.WithDescription("Number of flow runs"),
	)
	if err != nil {
		return nil, err
	}

	flowLatency, err := meter.Float64Histogram("stepflow.flow.latency_ms",
		metric.WithDescription("Flow run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	llmTokens, err := meter.Int64Counter("stepflow.llm.tokens",
		metric.WithDescription("LLM tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stepExecutions: stepExecutions,
		stepLatency:    stepLatency,
		stepErrors:     stepErrors,
		flowRuns:       flowRuns,
		flowLatency:    flowLatency,
		llmTokens:      llmTokens,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStepExecution records one step execution.
func (m *otelMetrics) RecordStepExecution(ctx context.Context, stepID string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("step_id", stepID),
	}

	m.stepExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stepLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.stepErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordFlowRun records a completed flow run.
func (m *otelMetrics) RecordFlowRun(ctx context.Context, flowID string, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("flow_id", flowID),
		attribute.Bool("success", success),
	}
	m.flowRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.flowLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordTokenUsage records token consumption of an llm step.
func (m *otelMetrics) RecordTokenUsage(ctx context.Context, model string, inputTokens, outputTokens int) {
	m.llmTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("direction", "input"),
	))
	m.llmTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("direction", "output"),
	))
}
