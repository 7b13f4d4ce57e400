// Package commands implements CLI command handlers for ordmap.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ordmap/pkg/config"
	"github.com/Sumatoshi-tech/ordmap/pkg/observability"
	"github.com/Sumatoshi-tech/ordmap/pkg/version"
)

const logFormatJSON = "json"

// workloadFlags are shared by every command that drives a workload. Only
// flags the user set override the loaded configuration.
type workloadFlags struct {
	configPath string
	keys       int
	operations int
	seed       int64
	maxNodes   int
	noColor    bool
}

func (wf *workloadFlags) register(cobraCmd *cobra.Command) {
	cobraCmd.Flags().StringVarP(&wf.configPath, "config", "c", "", "Configuration file (default: search ordmap.yaml)")
	cobraCmd.Flags().IntVar(&wf.keys, "keys", config.DefaultKeys, "Size of the key space")
	cobraCmd.Flags().IntVar(&wf.operations, "ops", config.DefaultOperations, "Number of operations to run")
	cobraCmd.Flags().Int64Var(&wf.seed, "seed", config.DefaultSeed, "Random seed")
	cobraCmd.Flags().IntVar(&wf.maxNodes, "max-nodes", config.DefaultMaxNodes, "Live node budget (0 = unbounded)")
	cobraCmd.Flags().BoolVar(&wf.noColor, "no-color", false, "Disable colored output")
}

// load reads the configuration and applies the flags that were set.
func (wf *workloadFlags) load(cobraCmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(wf.configPath)
	if err != nil {
		return nil, err
	}

	flags := cobraCmd.Flags()

	if flags.Changed("keys") {
		cfg.Workload.Keys = wf.keys
	}

	if flags.Changed("ops") {
		cfg.Workload.Operations = wf.operations
	}

	if flags.Changed("seed") {
		cfg.Workload.Seed = wf.seed
	}

	if flags.Changed("max-nodes") {
		cfg.Allocator.MaxNodes = wf.maxNodes
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	return cfg, nil
}

// observabilityConfig maps the telemetry and logging sections onto the
// observability settings for one command.
func observabilityConfig(cfg *config.Config, mode observability.AppMode, logOutput io.Writer) (observability.Config, error) {
	level, err := config.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return observability.Config{}, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Service.Version = version.Version
	obsCfg.Service.Mode = mode
	obsCfg.Export = observability.Export{
		Endpoint: cfg.Telemetry.OTLPEndpoint,
		Headers:  observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure: cfg.Telemetry.OTLPInsecure,
	}
	obsCfg.Sampling = observability.Sampling{
		Debug: cfg.Telemetry.DebugTrace,
		Ratio: cfg.Telemetry.SampleRatio,
	}
	obsCfg.Logging = observability.Logging{
		Level:  level,
		JSON:   cfg.Logging.Format == logFormatJSON,
		Output: logOutput,
	}

	return obsCfg, nil
}

func initObservability(
	ctx context.Context,
	cfg *config.Config,
	mode observability.AppMode,
	logOutput io.Writer,
) (observability.Providers, error) {
	obsCfg, err := observabilityConfig(cfg, mode, logOutput)
	if err != nil {
		return observability.Providers{}, err
	}

	providers, err := observability.Init(ctx, obsCfg)
	if err != nil {
		return observability.Providers{}, fmt.Errorf("init observability: %w", err)
	}

	return providers, nil
}

func shutdownObservability(providers observability.Providers) {
	err := providers.Shutdown(context.Background())
	if err != nil {
		providers.Logger.Warn("observability shutdown failed", "error", err)
	}
}
