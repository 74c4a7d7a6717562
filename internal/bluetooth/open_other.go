//go:build !windows

package bluetooth

import (
	"context"
	"fmt"

	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

func openWindows(context.Context, config.BluetoothConfig, Logger) (Gateway, error) {
	return nil, fmt.Errorf("%w: the windows gateway is only available on Windows", ErrBluetoothUnavailable)
}
