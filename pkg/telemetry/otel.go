package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// TracerProvider wraps the SDK tracer provider this process installed, so
// main() can shut it down cleanly.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// Shutdown flushes and stops the tracer provider.
func (t *TracerProvider) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// NewTracerProvider builds a trace provider for serviceName that exports
// spans to stdout. Tracing is off by default; callers opt in via
// OTEL_ENABLED.
func NewTracerProvider(ctx context.Context, serviceName string) (*TracerProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build stdout exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{provider: provider}, nil
}

// Enabled reports whether OTEL_ENABLED opts this process into tracing.
func Enabled() bool {
	return os.Getenv("OTEL_ENABLED") == "true"
}

// Middleware wraps next with otelhttp span creation, tagging each span
// with operation for readability in the exported trace.
func Middleware(operation string, next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, operation)
}
