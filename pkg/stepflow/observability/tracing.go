package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the engine tracer instance, bound to the global OTel
// tracer provider.
var tracer = otel.Tracer("stepflow")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartFlowSpan starts a span covering one flow run.
	StartFlowSpan(ctx context.Context, flowID, executionID string) (context.Context, trace.Span)

	// StartStepSpan starts a span for one step execution, as a child of
	// the flow span carried in ctx.
	StartStepSpan(ctx context.Context, stepID, stepType string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function.
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartFlowSpan starts a span covering one flow run.
func (m *otelSpanManager) StartFlowSpan(ctx context.Context, flowID, executionID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "stepflow.run",
		trace.WithAttributes(
			attribute.String("flow.id", flowID),
			attribute.String("execution.id", executionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartStepSpan starts a span for one step execution.
func (m *otelSpanManager) StartStepSpan(ctx context.Context, stepID, stepType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "stepflow.step."+stepID,
		trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.String("step.type", stepType),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
