package bluetooth

import (
	"context"
	"time"

	"github.com/bluetray/bluetray/internal/device"
)

// Gateway is the narrow view of the operating system's Bluetooth stack.
//
// Only the connection coordinator calls Connect and Disconnect. Both block
// until the OS reports an outcome or ctx ends; a ctx deadline surfaces as
// ErrTimeout.
type Gateway interface {
	// ListPairedDevices returns every device the OS has paired, with State
	// set to Connected or Disconnected as reported by the OS.
	ListPairedDevices(ctx context.Context) ([]device.Device, error)

	// Connect asks the OS to connect a paired device.
	Connect(ctx context.Context, address device.Address) error

	// Disconnect asks the OS to disconnect a device.
	Disconnect(ctx context.Context, address device.Address) error

	// Events delivers out-of-band changes (pairing, unpairing, connection
	// changes made outside Bluetray). The channel is closed by Close.
	Events() <-chan Event

	// Close stops event delivery and releases OS resources.
	Close() error
}

// EventKind classifies an out-of-band OS notification.
type EventKind int

// Event kinds.
const (
	// EventPaired reports a newly paired device.
	EventPaired EventKind = iota + 1
	// EventUnpaired reports a device the OS no longer knows.
	EventUnpaired
	// EventConnectionChanged reports a connection state change made
	// outside Bluetray (device powered off, connected from Settings, ...).
	EventConnectionChanged
	// EventDeviceChanged reports metadata changes such as a rename.
	EventDeviceChanged
)

func (k EventKind) String() string {
	switch k {
	case EventPaired:
		return "paired"
	case EventUnpaired:
		return "unpaired"
	case EventConnectionChanged:
		return "connection_changed"
	case EventDeviceChanged:
		return "device_changed"
	default:
		return "unknown"
	}
}

// Event is an out-of-band notification from the OS.
type Event struct {
	Kind EventKind
	// Device carries the observed device. For EventUnpaired only Address
	// is meaningful.
	Device device.Device
	// ObservedAt is when the OS observation was made.
	ObservedAt time.Time
}
