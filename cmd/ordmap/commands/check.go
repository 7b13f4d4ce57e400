package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ordmap/internal/report"
	"github.com/Sumatoshi-tech/ordmap/internal/workload"
	"github.com/Sumatoshi-tech/ordmap/pkg/observability"
)

// ErrCheckFailed is returned when a workload diverges or breaks an invariant.
var ErrCheckFailed = errors.New("check failed")

// CheckCommand runs a workload that verifies the tree after every mutation.
type CheckCommand struct {
	flags workloadFlags
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	cc := &CheckCommand{}

	cobraCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the red-black invariants under a randomized workload",
		Long: `Run a randomized insert/erase/lookup workload against the tree, replay it
on a plain map and run the invariants checker after every mutation.

The command exits non-zero on the first divergence or invariant violation.`,
		Args: cobra.NoArgs,
		RunE: cc.run,
	}

	cc.flags.register(cobraCmd)

	return cobraCmd
}

func (cc *CheckCommand) run(cobraCmd *cobra.Command, _ []string) error {
	cfg, err := cc.flags.load(cobraCmd)
	if err != nil {
		return err
	}

	cfg.Workload.CheckInterval = 1

	providers, err := initObservability(cobraCmd.Context(), cfg, observability.ModeCheck, cobraCmd.ErrOrStderr())
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	metrics, err := observability.NewTreeMetrics(providers.Meter)
	if err != nil {
		return err
	}

	runner := workload.NewRunner(workload.OptionsFromConfig(cfg), providers.Logger, providers.Tracer, metrics)
	printer := report.NewPrinter(cobraCmd.OutOrStdout(), !cc.flags.noColor)

	res, runErr := runner.Run(cobraCmd.Context())
	if runErr != nil {
		err = printer.Failure(res, runErr)
		if err != nil {
			return err
		}

		return fmt.Errorf("%w: %w", ErrCheckFailed, runErr)
	}

	return printer.Summary(res)
}
