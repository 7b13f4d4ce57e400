package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ordmap/internal/report"
	"github.com/Sumatoshi-tech/ordmap/internal/workload"
	"github.com/Sumatoshi-tech/ordmap/pkg/observability"
)

// BenchCommand measures throughput and tree shape under a workload.
type BenchCommand struct {
	flags         workloadFlags
	plotPath      string
	metricsAddr   string
	checkInterval int
}

// NewBenchCommand creates the bench command.
func NewBenchCommand() *cobra.Command {
	bc := &BenchCommand{}

	cobraCmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure throughput, height and fix-up statistics",
		Long: `Run a randomized workload and report throughput, the final height against
the 2*log2(n+1) bound and the rotation and recoloring counters.

With --plot the height and size over the run are written as an HTML chart.
With --metrics-addr the tree metrics are served for Prometheus until the
process is interrupted.`,
		Args: cobra.NoArgs,
		RunE: bc.run,
	}

	bc.flags.register(cobraCmd)
	cobraCmd.Flags().StringVar(&bc.plotPath, "plot", "", "Write a height/size chart to this HTML file")
	cobraCmd.Flags().StringVar(&bc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cobraCmd.Flags().IntVar(&bc.checkInterval, "check-interval", 0, "Run the invariants checker every N mutations (0 = final check only)")

	return cobraCmd
}

func (bc *BenchCommand) run(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := bc.flags.load(cobraCmd)
	if err != nil {
		return err
	}

	cfg.Workload.CheckInterval = bc.checkInterval

	metricsAddr := cfg.Telemetry.MetricsListen
	if cobraCmd.Flags().Changed("metrics-addr") {
		metricsAddr = bc.metricsAddr
	}

	ctx, stop := signal.NotifyContext(cobraCmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := initObservability(ctx, cfg, observability.ModeBench, cobraCmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	meter := providers.Meter
	serveDone := make(chan error, 1)

	if metricsAddr != "" {
		exporter, listener, startErr := startMetrics(ctx, metricsAddr, providers, serveDone)
		if startErr != nil {
			return startErr
		}

		defer func() { _ = exporter.Shutdown(context.WithoutCancel(ctx)) }()

		meter = exporter.Meter

		providers.Logger.InfoContext(ctx, "metrics endpoint ready", "url", "http://"+listener.Addr().String()+"/metrics")
	}

	metrics, err := observability.NewTreeMetrics(meter)
	if err != nil {
		return err
	}

	runner := workload.NewRunner(workload.OptionsFromConfig(cfg), providers.Logger, providers.Tracer, metrics)
	printer := report.NewPrinter(cobraCmd.OutOrStdout(), !bc.flags.noColor)

	res, runErr := runner.Run(ctx)
	if runErr != nil {
		stop()

		err = printer.Failure(res, runErr)
		if err != nil {
			return err
		}

		return fmt.Errorf("bench: %w", runErr)
	}

	err = printer.Summary(res)
	if err != nil {
		return err
	}

	if bc.plotPath != "" {
		err = report.WriteChart(res, bc.plotPath)
		if err != nil {
			return err
		}

		err = printer.Notef("chart written to %s", bc.plotPath)
		if err != nil {
			return err
		}
	}

	if metricsAddr == "" {
		return nil
	}

	err = printer.Notef("serving metrics until interrupted")
	if err != nil {
		return err
	}

	return <-serveDone
}

func startMetrics(
	ctx context.Context,
	addr string,
	providers observability.Providers,
	done chan<- error,
) (*observability.PrometheusExporter, net.Listener, error) {
	exporter, err := observability.NewPrometheusExporter()
	if err != nil {
		return nil, nil, err
	}

	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		_ = exporter.Shutdown(ctx)

		return nil, nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	go func() {
		done <- observability.ServeMetrics(ctx, listener, exporter.Handler, providers.Logger)
	}()

	return exporter, listener, nil
}
