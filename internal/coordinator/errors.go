package coordinator

import "errors"

// Request errors. Check with errors.Is.
var (
	// ErrUnknownDevice is returned when the address is not in the Registry.
	ErrUnknownDevice = errors.New("coordinator: unknown device")

	// ErrAlreadyInFlight is returned when the device already has a pending
	// connect or disconnect. The Gateway is not called.
	ErrAlreadyInFlight = errors.New("coordinator: device already has an operation in flight")

	// ErrNotConnected is returned by RequestDisconnect when the device is
	// not Connected.
	ErrNotConnected = errors.New("coordinator: device not connected")

	// ErrAlreadyConnected is returned by RequestConnect when the device is
	// already Connected.
	ErrAlreadyConnected = errors.New("coordinator: device already connected")

	// ErrInvalidState is returned by ExternalStateChange for a state the OS
	// cannot report: unknown, Connecting or Disconnecting.
	ErrInvalidState = errors.New("coordinator: state cannot be reported externally")

	// ErrClosed is returned once the coordinator has shut down.
	ErrClosed = errors.New("coordinator: closed")
)
