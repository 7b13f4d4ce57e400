package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const (
	instrumentationName = "github.com/Sumatoshi-tech/ordmap"

	envTracesSampler = "OTEL_TRACES_SAMPLER"
	attrAppMode      = "app.mode"
)

// Providers holds the initialized observability providers.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Shutdown flushes pending telemetry. Calling it again is a no-op.
	Shutdown func(ctx context.Context) error
}

type shutdownFunc func(ctx context.Context) error

// Init builds the tracer, meter and logger for one ordmap run and installs the
// tracer and meter providers globally.
func Init(ctx context.Context, cfg Config) (Providers, error) {
	res, err := serviceResource(ctx, cfg.Service)
	if err != nil {
		return Providers{}, err
	}

	var closers []shutdownFunc

	shutdown := func(shutdownCtx context.Context) error {
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}

		flushCtx, cancel := context.WithTimeout(shutdownCtx, timeout)
		defer cancel()

		errs := make([]error, 0, len(closers))
		for _, closeFn := range closers {
			errs = append(errs, closeFn(flushCtx))
		}

		closers = nil

		return errors.Join(errs...)
	}

	var (
		tracerProvider trace.TracerProvider = nooptrace.NewTracerProvider()
		meterProvider  metric.MeterProvider = noopmetric.NewMeterProvider()
	)

	if cfg.Export.Endpoint != "" {
		tp, tpErr := exportingTracerProvider(ctx, cfg, res)
		if tpErr != nil {
			return Providers{}, tpErr
		}

		closers = append(closers, tp.Shutdown)
		tracerProvider = tp

		mp, mpErr := exportingMeterProvider(ctx, cfg.Export, res)
		if mpErr != nil {
			return Providers{}, errors.Join(mpErr, shutdown(ctx))
		}

		closers = append(closers, mp.Shutdown)
		meterProvider = mp
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return Providers{
		Tracer:   tracerProvider.Tracer(instrumentationName),
		Meter:    meterProvider.Meter(instrumentationName),
		Logger:   NewLogger(cfg),
		Shutdown: shutdown,
	}, nil
}

// serviceResource layers OTEL_RESOURCE_ATTRIBUTES under the ordmap service
// identity.
func serviceResource(ctx context.Context, svc Service) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(svc.Name)}

	if svc.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(svc.Version))
	}

	if svc.Mode != "" {
		attrs = append(attrs, attribute.String(attrAppMode, string(svc.Mode)))
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	return res, nil
}

// sampler returns nil when the SDK should resolve OTEL_TRACES_SAMPLER itself.
func (s Sampling) sampler() sdktrace.Sampler {
	if s.Debug {
		return sdktrace.AlwaysSample()
	}

	if os.Getenv(envTracesSampler) != "" {
		return nil
	}

	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(s.Ratio))
}

func tracerOptions(sampling Sampling, res *resource.Resource) []sdktrace.TracerProviderOption {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if sampler := sampling.sampler(); sampler != nil {
		opts = append(opts, sdktrace.WithSampler(sampler))
	}

	return opts
}

func exportingTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Export.Endpoint)}

	if cfg.Export.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	if len(cfg.Export.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Export.Headers))
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tpOpts := append(tracerOptions(cfg.Sampling, res), sdktrace.WithBatcher(exporter))

	return sdktrace.NewTracerProvider(tpOpts...), nil
}

func exportingMeterProvider(ctx context.Context, export Export, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(export.Endpoint)}

	if export.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	if len(export.Headers) > 0 {
		opts = append(opts, otlpmetricgrpc.WithHeaders(export.Headers))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

// NewLogger returns a text or JSON logger whose records carry the service,
// mode and active span.
func NewLogger(cfg Config) *slog.Logger {
	var out io.Writer = os.Stderr
	if cfg.Logging.Output != nil {
		out = cfg.Logging.Output
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.Logging.Level}

	var inner slog.Handler = slog.NewTextHandler(out, handlerOpts)
	if cfg.Logging.JSON {
		inner = slog.NewJSONHandler(out, handlerOpts)
	}

	return slog.New(NewTracingHandler(inner, cfg.Service.Name, cfg.Service.Mode))
}

// ParseOTLPHeaders reads the "name=value,name=value" form of
// OTEL_EXPORTER_OTLP_HEADERS. Pairs without a name are skipped; the result is
// nil when nothing remains.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)

		if !ok || name == "" {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[name] = strings.TrimSpace(value)
	}

	return headers
}
