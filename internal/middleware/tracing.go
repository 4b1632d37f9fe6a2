package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware emits an OpenTelemetry span around every intercepted
// call, named after the operation and agent. No exporter is wired here:
// spans record against whatever TracerProvider the process has configured,
// a no-op by default.
type TracingMiddleware struct {
	Base
	tracer trace.Tracer
}

// NewTracingMiddleware returns a middleware using the global TracerProvider
// under the given instrumentation name.
func NewTracingMiddleware(instrumentationName string) *TracingMiddleware {
	if instrumentationName == "" {
		instrumentationName = "agentkit"
	}
	return &TracingMiddleware{tracer: otel.Tracer(instrumentationName)}
}

func (m *TracingMiddleware) Name() string { return "tracing" }

type spanKey struct{}

func (m *TracingMiddleware) ProcessRequest(ctx *Context) error {
	_, span := m.tracer.Start(context.Background(), string(ctx.Operation),
		trace.WithAttributes(
			attribute.String("agentkit.agent", ctx.AgentName),
			attribute.String("agentkit.operation", string(ctx.Operation)),
		))
	ctx.Metadata["tracing.span"] = span
	return nil
}

func (m *TracingMiddleware) ProcessResponse(ctx *Context, result any) (any, error) {
	if span, ok := ctx.Metadata["tracing.span"].(trace.Span); ok {
		span.SetStatus(codes.Ok, "")
		span.End()
	}
	return result, nil
}

func (m *TracingMiddleware) ProcessError(ctx *Context, err error) (any, error) {
	if span, ok := ctx.Metadata["tracing.span"].(trace.Span); ok {
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
	return nil, err
}
