package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluetray/bluetray/internal/app"
	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/history"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <address>",
		Short: "Show recorded connection changes for a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := device.ParseAddress(args[0])
			if err != nil {
				return err
			}

			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return fmt.Errorf("connection history is disabled in %s", path)
			}

			db, err := app.OpenHistory(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // read-only use

			entries, err := history.NewSQLiteRepository(db.DB).GetHistory(cmd.Context(), address, limit)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			return printHistory(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show (newest first)")
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no history recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tNAME\tCHANGE\tSTATE\tREASON")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Name, e.Change, e.State, e.Reason)
	}
	return tw.Flush()
}
