// Package observability provides OpenTelemetry-based tracing, metrics, and
// structured logging for the ordmap tool.
package observability

import (
	"io"
	"log/slog"
	"time"
)

// AppMode identifies the command the binary runs.
type AppMode string

const (
	// ModeCLI is used by commands that do not drive a workload.
	ModeCLI AppMode = "cli"
	// ModeCheck is the invariant verification workload.
	ModeCheck AppMode = "check"
	// ModeBench is the throughput workload.
	ModeBench AppMode = "bench"
)

const (
	defaultServiceName     = "ordmap"
	defaultShutdownTimeout = 5 * time.Second
)

// Service names the process on every span, metric and log record.
type Service struct {
	Name    string
	Version string
	Mode    AppMode
}

// Export points the OTLP gRPC exporters at a collector. An empty Endpoint
// keeps tracing and metrics on no-op providers.
type Export struct {
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// Sampling decides which workload traces are kept.
type Sampling struct {
	// Debug keeps every trace and overrides OTEL_TRACES_SAMPLER.
	Debug bool
	// Ratio is the parent-based share of root traces kept, in [0, 1].
	Ratio float64
}

// Logging configures the slog handler.
type Logging struct {
	Level slog.Level
	JSON  bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Config holds all observability configuration.
type Config struct {
	Service  Service
	Export   Export
	Sampling Sampling
	Logging  Logging

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration
}

// DefaultConfig keeps every trace, logs text at info level and exports nothing.
func DefaultConfig() Config {
	return Config{
		Service:         Service{Name: defaultServiceName, Mode: ModeCLI},
		Sampling:        Sampling{Ratio: 1},
		Logging:         Logging{Level: slog.LevelInfo},
		ShutdownTimeout: defaultShutdownTimeout,
	}
}
