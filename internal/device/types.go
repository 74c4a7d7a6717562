package device

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Address is a Bluetooth device address in canonical upper-case colon form,
// for example "AA:BB:CC:DD:EE:FF". It is the immutable, unique key of a
// Device.
type Address string

// ParseAddress normalises a Bluetooth address.
//
// Accepted forms (case-insensitive):
//   - AA:BB:CC:DD:EE:FF
//   - AA-BB-CC-DD-EE-FF
//   - AABBCCDDEEFF
//
// Returns ErrInvalidAddress for anything else.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimSpace(s)

	var raw string
	switch len(trimmed) {
	case 12:
		raw = trimmed
	case 17:
		sep := trimmed[2]
		if sep != ':' && sep != '-' {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		for i := 2; i < 17; i += 3 {
			if trimmed[i] != sep {
				return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
			}
		}
		raw = strings.ReplaceAll(trimmed, string(sep), "")
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	raw = strings.ToUpper(raw)
	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(raw[i : i+2])
	}
	return Address(b.String()), nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on
// invalid input.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromUint64 converts the 48-bit integer form used by the Windows
// Bluetooth API into an Address.
func AddressFromUint64(v uint64) Address {
	return Address(fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v)))
}

// Uint64 returns the 48-bit integer form of the address. The address must
// be canonical (as produced by ParseAddress).
func (a Address) Uint64() uint64 {
	raw, err := hex.DecodeString(strings.ReplaceAll(string(a), ":", ""))
	if err != nil || len(raw) != 6 {
		return 0
	}
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return v
}

func (a Address) String() string { return string(a) }

// StateKind enumerates connection states.
//
// The zero value StateUnknown is only meaningful in an update and means
// "no state information"; devices held by the Registry never carry it.
type StateKind int

// Connection states.
const (
	StateUnknown StateKind = iota
	StateDisconnected
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

var stateKindNames = map[StateKind]string{
	StateUnknown:       "unknown",
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateDisconnecting: "disconnecting",
	StateFailed:        "failed",
}

func (k StateKind) String() string {
	if s, ok := stateKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("StateKind(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StateKind) UnmarshalText(text []byte) error {
	parsed, err := ParseStateKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseStateKind parses the lower-case name of a state.
func ParseStateKind(s string) (StateKind, error) {
	for k, name := range stateKindNames {
		if name == s {
			return k, nil
		}
	}
	return StateUnknown, fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// ConnState is a device's connection state.
//
// Reason and RevertTo are only set for StateFailed: Reason is a short
// human-readable cause ("timeout", "device unreachable") and RevertTo is
// the stable state the device returns to once the failure cool-down ends.
type ConnState struct {
	Kind     StateKind `json:"kind"`
	Reason   string    `json:"reason,omitempty"`
	RevertTo StateKind `json:"revert_to,omitempty"`
}

// Disconnected returns the Disconnected state.
func Disconnected() ConnState { return ConnState{Kind: StateDisconnected} }

// Connecting returns the Connecting state.
func Connecting() ConnState { return ConnState{Kind: StateConnecting} }

// Connected returns the Connected state.
func Connected() ConnState { return ConnState{Kind: StateConnected} }

// Disconnecting returns the Disconnecting state.
func Disconnecting() ConnState { return ConnState{Kind: StateDisconnecting} }

// Failed returns a Failed state that reverts to revertTo after cool-down.
func Failed(reason string, revertTo StateKind) ConnState {
	return ConnState{Kind: StateFailed, Reason: reason, RevertTo: revertTo}
}

// InFlight reports whether an operation is pending for the device.
func (s ConnState) InFlight() bool {
	return s.Kind == StateConnecting || s.Kind == StateDisconnecting
}

// Settled reports whether s is the outcome of an operation rather than an
// intermediate step.
func (s ConnState) Settled() bool {
	switch s.Kind {
	case StateConnected, StateDisconnected, StateFailed:
		return true
	default:
		return false
	}
}

// Effective is the state the OS holds the device in. A Failed device is
// judged by its revert target, which is Disconnected when unset.
func (s ConnState) Effective() StateKind {
	if s.Kind != StateFailed {
		return s.Kind
	}
	if s.RevertTo == StateUnknown {
		return StateDisconnected
	}
	return s.RevertTo
}

func (s ConnState) String() string {
	if s.Kind == StateFailed && s.Reason != "" {
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return s.Kind.String()
}

// Device is a paired Bluetooth device as last observed.
type Device struct {
	// Address is the unique, immutable key.
	Address Address `json:"address"`

	// Name is the OS-supplied display name. It may change at any time.
	Name string `json:"name"`

	// State is the current connection state.
	State ConnState `json:"state"`

	// LastSeen is when the device was last observed. Notifications older
	// than LastSeen are stale.
	LastSeen time.Time `json:"last_seen"`

	// Class is the Bluetooth class-of-device value, 0 if unknown.
	Class uint32 `json:"class,omitempty"`

	// Authenticated and Remembered mirror the OS pairing flags.
	Authenticated bool `json:"authenticated"`
	Remembered    bool `json:"remembered"`

	// LastUsed is when the OS last used the device, zero if unknown.
	LastUsed time.Time `json:"last_used,omitzero"`
}

// DisplayName returns the name shown to users, falling back to the
// address for unnamed devices.
func (d Device) DisplayName() string {
	if strings.TrimSpace(d.Name) == "" {
		return d.Address.String()
	}
	return d.Name
}

// Equal reports whether two devices carry identical data.
func (d Device) Equal(o Device) bool {
	return d.Address == o.Address &&
		d.Name == o.Name &&
		d.State == o.State &&
		d.LastSeen.Equal(o.LastSeen) &&
		d.Class == o.Class &&
		d.Authenticated == o.Authenticated &&
		d.Remembered == o.Remembered &&
		d.LastUsed.Equal(o.LastUsed)
}
