// Package observability wires an OpenTelemetry tracer provider for hosts
// that want the engine's spans (middleware.TracingMiddleware's model and
// tool call spans) recorded. Workflow steps are not traced. No exporter is
// configured here; callers pass their own via options.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Setup builds a TracerProvider tagged with serviceName, installs it as
// the global provider, and returns it so the host can defer Shutdown.
func Setup(serviceName string, opts ...sdktrace.TracerProviderOption) (*sdktrace.TracerProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("observability: service name is required")
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	all := append([]sdktrace.TracerProviderOption{sdktrace.WithResource(res)}, opts...)
	tp := sdktrace.NewTracerProvider(all...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Shutdown flushes and stops the provider, tolerating a nil receiver so
// hosts can defer it unconditionally.
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
