package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluetray/bluetray/internal/bluetooth"
	"github.com/bluetray/bluetray/internal/device"
)

const listTimeout = 30 * time.Second

func newDevicesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls"},
		Short:   "List paired devices and their connection state",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), listTimeout)
			defer cancel()

			gateway, err := bluetooth.Open(ctx, cfg.Bluetooth, nil)
			if err != nil {
				return fmt.Errorf("opening bluetooth gateway: %w", err)
			}
			defer gateway.Close() //nolint:errcheck // read-only use

			devices, err := gateway.ListPairedDevices(ctx)
			if err != nil {
				return fmt.Errorf("listing paired devices: %w", err)
			}
			return printDevices(cmd.OutOrStdout(), devices)
		},
	}
}

// printDevices writes devices in menu order.
func printDevices(w io.Writer, devices []device.Device) error {
	device.SortDevices(devices)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tSTATE")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Address, d.DisplayName(), d.State)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "no paired devices")
	}
	return nil
}
