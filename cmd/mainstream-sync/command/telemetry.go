package command

import (
	"fmt"
	"text/tabwriter"

	"github.com/jwulff/mainstream-sync/internal/timestamp"
	"github.com/spf13/cobra"
)

func newTelemetryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Inspect stored telemetry",
	}
	cmd.AddCommand(newTelemetryListCommand(opts))
	return cmd
}

func newTelemetryListCommand(opts *rootOptions) *cobra.Command {
	var since, until string

	cmd := &cobra.Command{
		Use:   "list <deviceId>",
		Short: "List stored readings for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for flag, value := range map[string]string{"since": since, "until": until} {
				if value == "" {
					continue
				}
				if _, err := timestamp.New(0).Parse(value); err != nil {
					return fmt.Errorf("--%s must use the layout %q", flag, timestamp.Layout)
				}
			}

			b, err := openBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			rows, err := b.store.QueryTelemetry(cmd.Context(), args[0], since, until)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MONITOR TIME\tMONITOR ITEM\tVALUE")
			for _, row := range rows {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", row.MonitorTime, row.MonitorItem, row.MonitorValue)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "inclusive lower bound, e.g. \"2024-01-01 00:00:00\"")
	cmd.Flags().StringVar(&until, "until", "", "inclusive upper bound")
	return cmd
}
