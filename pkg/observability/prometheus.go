package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	metricsPath        = "/metrics"
	readHeaderTimeout  = 5 * time.Second
	serverShutdownWait = 5 * time.Second
)

// PrometheusExporter collects OTel instruments created from Meter and serves
// them on a Prometheus scrape endpoint. Each exporter owns an independent
// registry so that several can coexist in one process.
type PrometheusExporter struct {
	Meter    metric.Meter
	Handler  http.Handler
	provider *sdkmetric.MeterProvider
}

// NewPrometheusExporter creates the registry, the OTel exporter reading into
// it and the MeterProvider instruments are created from.
func NewPrometheusExporter() (*PrometheusExporter, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return &PrometheusExporter{
		Meter:    provider.Meter(instrumentationName),
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		provider: provider,
	}, nil
}

// Shutdown releases the MeterProvider.
func (pe *PrometheusExporter) Shutdown(ctx context.Context) error {
	return pe.provider.Shutdown(ctx)
}

// ServeMetrics serves handler under /metrics on listener until ctx is done.
func ServeMetrics(ctx context.Context, listener net.Listener, handler http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	done := make(chan error, 1)

	go func() {
		done <- server.Serve(listener)
	}()

	logger.InfoContext(ctx, "serving metrics", "addr", listener.Addr().String(), "path", metricsPath)

	select {
	case err := <-done:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), serverShutdownWait)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}

	err = <-done
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
