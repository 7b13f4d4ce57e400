package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ordmap/pkg/config"
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cobraCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the ordmap configuration file",
	}

	cobraCmd.AddCommand(newConfigInitCommand())

	return cobraCmd
}

func newConfigInitCommand() *cobra.Command {
	var force bool

	cobraCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			path := config.FileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}

			err := config.WriteDefault(path, force)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cobraCmd.OutOrStdout(), "wrote %s\n", path)

			return err
		},
	}

	cobraCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cobraCmd
}
