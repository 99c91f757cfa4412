package command

import (
	"errors"
	"fmt"
	"io"

	"github.com/jwulff/mainstream-sync/internal/scheduler"
	"github.com/spf13/cobra"
)

func newOnceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single sync cycle and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.MainStream.URL == "" {
				return errors.New("mainstream.url is not set")
			}

			report := a.scheduler.RunCycle(cmd.Context())
			printReport(cmd.OutOrStdout(), report)
			if report.Outcome.Failed() {
				return fmt.Errorf("sync cycle %s: %w", report.Outcome, report.Err)
			}
			return nil
		},
	}
}

func printReport(w io.Writer, r scheduler.CycleReport) {
	fmt.Fprintf(w, "cycle:    %s\n", r.ID)
	fmt.Fprintf(w, "outcome:  %s\n", r.Outcome)
	fmt.Fprintf(w, "duration: %s\n", r.Duration)
	fmt.Fprintf(w, "devices:  %d\n", r.Devices)
	fmt.Fprintf(w, "batch:    %d rows, %d inserted\n", r.BatchRows, r.BatchInserted)
	fmt.Fprintf(w, "latest:   %d stored, %d skipped, %d failed, %d inserted\n",
		r.LatestStored, r.LatestSkipped, r.LatestFailed, r.LatestInserted)
	if r.Err != nil {
		fmt.Fprintf(w, "error:    %v\n", r.Err)
	}
}
