// Package cli implements the bluetray command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bluetray/bluetray/internal/app"
	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

// BuildInfo is stamped into the binary at build time via -ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Execute parses os.Args and runs the selected command. With no
// subcommand Bluetray starts in the tray.
func Execute(ctx context.Context, info BuildInfo) error {
	return NewRootCmd(info).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "bluetray",
		Short: "Connect and disconnect paired Bluetooth devices from the tray",
		Long: `Bluetray lists the Bluetooth devices paired with this machine in a
tray menu. Clicking a device connects or disconnects it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd.Context(), configPath, false, info)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")

	// Subcommands (alphabetical)
	root.AddCommand(newDevicesCmd(&configPath))
	root.AddCommand(newHistoryCmd(&configPath))
	root.AddCommand(newRunCmd(&configPath, info))
	root.AddCommand(newVersionCmd(info))

	return root
}

// loadConfig resolves the config path and loads it.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

func runApp(ctx context.Context, configPath string, headless bool, info BuildInfo) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	return app.Run(ctx, cfg, app.Options{
		ConfigPath: path,
		Headless:   headless,
		Version:    info.Version,
	})
}
