package cli

import (
	"github.com/spf13/cobra"
)

func newRunCmd(configPath *string, info BuildInfo) *cobra.Command {
	var headless bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start Bluetray",
		Long: `Start Bluetray. Without --headless this is the same as running
bluetray with no arguments. Headless mode keeps the coordinator, local API
and MQTT bridge running without a tray icon.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd.Context(), *configPath, headless, info)
		},
	}
	cmd.Flags().BoolVar(&headless, "headless", false, "run without the tray icon")
	return cmd
}
