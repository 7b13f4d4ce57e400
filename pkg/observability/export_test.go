package observability

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ServiceResource exposes serviceResource for testing.
func ServiceResource(svc Service) (*resource.Resource, error) {
	return serviceResource(context.Background(), svc)
}

// RootSpanRecorded starts one root span on a tracer provider built with the
// options Init would use for sampling and reports whether it was exported.
func RootSpanRecorded(sampling Sampling) bool {
	exporter := tracetest.NewInMemoryExporter()
	opts := append(tracerOptions(sampling, resource.Empty()), sdktrace.WithSyncer(exporter))
	tp := sdktrace.NewTracerProvider(opts...)

	_, span := tp.Tracer("test").Start(context.Background(), "workload")
	span.End()

	// Shutdown resets the exporter.
	recorded := len(exporter.GetSpans()) > 0

	if tp.Shutdown(context.Background()) != nil {
		return false
	}

	return recorded
}
