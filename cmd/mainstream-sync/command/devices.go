package command

import (
	"fmt"
	"text/tabwriter"

	"github.com/jwulff/mainstream-sync/internal/domain"
	"github.com/spf13/cobra"
)

func newDevicesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Manage the device registry",
	}
	cmd.AddCommand(newDevicesAddCommand(opts), newDevicesListCommand(opts), newDevicesRemoveCommand(opts))
	return cmd
}

func newDevicesAddCommand(opts *rootOptions) *cobra.Command {
	var reg domain.Registration

	cmd := &cobra.Command{
		Use:   "add <deviceId> <deviceKey> <monitorItem>",
		Short: "Add or update a device",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg.DeviceID, reg.DeviceKey, reg.MonitorItem = args[0], args[1], args[2]

			b, err := openBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.store.SaveDevice(cmd.Context(), reg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved device %s\n", reg.DeviceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reg.CustomName, "custom-name", "", "display name")
	cmd.Flags().StringVar(&reg.DeviceName, "device-name", "", "vendor device name")
	cmd.Flags().StringVar(&reg.Latitude, "latitude", "", "latitude")
	cmd.Flags().StringVar(&reg.Longitude, "longitude", "", "longitude")
	return cmd
}

func newDevicesListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			regs, err := b.store.ListDevices(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DEVICE\tMONITOR ITEM\tNAME\tCOMPLETE")
			for _, reg := range regs {
				_, complete := reg.Device()
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", reg.DeviceID, reg.MonitorItem, reg.CustomName, complete)
			}
			return tw.Flush()
		},
	}
}

func newDevicesRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <deviceId>",
		Short: "Remove a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBase(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.store.DeleteDevice(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed device %s\n", args[0])
			return nil
		},
	}
}
