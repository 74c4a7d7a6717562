package bluetooth

import (
	"context"
	"fmt"

	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

// Open creates the gateway selected by cfg.Gateway.
//
// The Windows gateway verifies that a radio is present and returns an
// error matching ErrBluetoothUnavailable otherwise; callers treat that as
// fatal at startup.
//
// Parameters:
//   - ctx: Bounds the initial device listing
//   - cfg: Bluetooth configuration
//   - logger: Logger for gateway diagnostics (nil for none)
//
// Returns:
//   - Gateway: Ready for use; the caller must Close it
//   - error: ErrBluetoothUnavailable or a configuration error
func Open(ctx context.Context, cfg config.BluetoothConfig, logger Logger) (Gateway, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	switch cfg.Gateway {
	case config.GatewaySimulated:
		logger.Info("using simulated bluetooth gateway", "devices", len(cfg.Simulated.Devices))
		return NewSimulated(cfg.Simulated), nil
	case config.GatewayWindows:
		return openWindows(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown bluetooth gateway %q", cfg.Gateway)
	}
}
