package bluetooth

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors for the bluetooth package.
var (
	// ErrBluetoothUnavailable is returned when no Bluetooth radio or stack
	// is present. It is fatal at startup.
	ErrBluetoothUnavailable = errors.New("bluetooth: unavailable")

	// ErrGatewayFailure wraps any failure reported by the OS stack.
	ErrGatewayFailure = errors.New("bluetooth: os gateway failure")

	// ErrDeviceNotPaired is returned when the OS no longer knows the device.
	ErrDeviceNotPaired = errors.New("bluetooth: device not paired")

	// ErrDeviceUnreachable is returned when the device did not respond.
	ErrDeviceUnreachable = errors.New("bluetooth: device unreachable")

	// ErrTimeout is returned when an operation exceeded its deadline.
	ErrTimeout = errors.New("bluetooth: timeout")

	// ErrClosed is returned by a gateway after Close.
	ErrClosed = errors.New("bluetooth: gateway closed")
)

// OSError is a failure reported by the operating system's Bluetooth API.
// It matches ErrGatewayFailure with errors.Is.
type OSError struct {
	// Op is the API call that failed, for example "BluetoothSetServiceState".
	Op string
	// Code is the Win32 error code, 0 if not applicable.
	Code uint32
	// Reason is the short user-facing cause.
	Reason string
	// Err is an optional more specific sentinel (ErrDeviceNotPaired, ...).
	Err error
}

func (e *OSError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("bluetooth: %s failed (code %d): %s", e.Op, e.Code, e.Reason)
	}
	return fmt.Sprintf("bluetooth: %s failed: %s", e.Op, e.Reason)
}

// Is reports whether target is ErrGatewayFailure or the wrapped sentinel.
func (e *OSError) Is(target error) bool {
	return target == ErrGatewayFailure || (e.Err != nil && errors.Is(e.Err, target))
}

// Unwrap returns the wrapped sentinel, if any.
func (e *OSError) Unwrap() error {
	return e.Err
}

// Reason converts a gateway error into the short reason shown in the
// tray and stored in Failed states.
func Reason(err error) string {
	var osErr *OSError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &osErr) && osErr.Reason != "":
		return osErr.Reason
	case errors.Is(err, ErrDeviceNotPaired):
		return "device not paired"
	case errors.Is(err, ErrDeviceUnreachable):
		return "device unreachable"
	case errors.Is(err, ErrBluetoothUnavailable):
		return "bluetooth unavailable"
	case errors.Is(err, ErrClosed), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return err.Error()
	}
}
