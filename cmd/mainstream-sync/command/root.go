// Package command holds the mainstream-sync cobra commands.
package command

import (
	"github.com/jwulff/mainstream-sync/internal/config"
	"github.com/spf13/cobra"
)

// Version is the build version reported by the root command.
var Version = "0.1.0-dev"

type rootOptions struct {
	configDir string
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:          "mainstream-sync",
		Short:        "Sync device telemetry from the main stream API",
		Long:         `mainstream-sync periodically pulls readings for registered devices from the main stream API and stores them.`,
		Version:      Version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config", config.DefaultDir, "directory of YAML configuration files")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newOnceCommand(opts),
		newDevicesCommand(opts),
		newTelemetryCommand(opts),
		newConfigCommand(opts),
	)
	return rootCmd
}
