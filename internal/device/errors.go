package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device has the given address.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidAddress is returned when a Bluetooth address cannot be parsed.
	ErrInvalidAddress = errors.New("device: invalid address")

	// ErrInvalidState is returned when a state name is not recognised.
	ErrInvalidState = errors.New("device: invalid state")
)
