// Bluetray - Bluetooth devices in the Windows tray
//
// This is the main entry point. With no arguments Bluetray shows its tray
// icon; see `bluetray --help` for the other commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bluetray/bluetray/internal/bluetooth"
	"github.com/bluetray/bluetray/internal/cli"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitNoBluetooth = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := cli.Execute(ctx, cli.BuildInfo{Version: version, Commit: commit, Date: date})
	code := exitCode(err)
	if code != exitOK {
		reportFatal(fatalMessage(err))
	}
	cancel()
	os.Exit(code)
}

// exitCode maps a run error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, bluetooth.ErrBluetoothUnavailable):
		return exitNoBluetooth
	default:
		return exitError
	}
}

func fatalMessage(err error) string {
	if errors.Is(err, bluetooth.ErrBluetoothUnavailable) {
		return "No Bluetooth radio was found, or Bluetooth is turned off.\n\n" +
			"Turn Bluetooth on in Settings and start Bluetray again."
	}
	return fmt.Sprintf("Error: %v", err)
}
