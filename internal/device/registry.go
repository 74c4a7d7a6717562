package device

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ChangeKind classifies a Registry mutation.
type ChangeKind int

// Change kinds.
const (
	ChangeAdded ChangeKind = iota + 1
	ChangeUpdated
	ChangeRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change describes one effective Registry mutation.
//
// Device is the device after the change (for ChangeRemoved, the device as
// it was when removed). Previous is the device before the change and is
// the zero Device for ChangeAdded.
type Change struct {
	Kind     ChangeKind
	Device   Device
	Previous Device
	At       time.Time
}

// StateChanged reports whether the connection state differs between
// Previous and Device.
func (c Change) StateChanged() bool {
	return c.Kind != ChangeUpdated || c.Previous.State != c.Device.State
}

// snapshot is an immutable view of the registry contents.
type snapshot struct {
	byAddress map[Address]Device
	ordered   []Device
}

var emptySnapshot = &snapshot{byAddress: map[Address]Device{}}

// Registry holds the last-known set of paired devices and their
// connection state.
//
// Reads (Get, List, Count, Stats) are lock-free: they load an immutable
// snapshot published through an atomic pointer, so a presenter rendering
// the menu never waits on a writer. Writes copy the snapshot under a
// writer mutex and publish the new one.
//
// Every effective mutation emits exactly one Change to each subscriber.
// Mutations that change nothing observable emit nothing.
//
// The Registry performs no I/O and is never persisted.
type Registry struct {
	snap    atomic.Pointer[snapshot]
	writeMu sync.Mutex

	subMu   sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	logger  Logger
	nowFunc func() time.Time
}

// NewRegistry creates an empty device registry.
func NewRegistry() *Registry {
	r := &Registry{
		subs:    make(map[*Subscription]struct{}),
		logger:  noopLogger{},
		nowFunc: time.Now,
	}
	r.snap.Store(emptySnapshot)
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Get returns a snapshot of the device with the given address.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(address Address) (Device, error) {
	d, ok := r.snap.Load().byAddress[address]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	return d, nil
}

// List returns all devices ordered by display name (case-insensitive),
// ties broken by address. Every call reflects the state at the time of
// the call and the returned slice is owned by the caller.
func (r *Registry) List() []Device {
	return slices.Clone(r.snap.Load().ordered)
}

// Count returns the number of devices.
func (r *Registry) Count() int {
	return len(r.snap.Load().ordered)
}

// Stats returns registry statistics for the tray tooltip and health API.
type Stats struct {
	Total   int
	ByState map[StateKind]int
}

// Stats returns current registry statistics.
func (r *Registry) Stats() Stats {
	s := r.snap.Load()
	stats := Stats{
		Total:   len(s.ordered),
		ByState: make(map[StateKind]int),
	}
	for _, d := range s.ordered {
		stats.ByState[d.State.Kind]++
	}
	return stats
}

// Upsert inserts or updates a device by address.
//
// Merge rules for an existing device:
//   - An update whose State.Kind is StateUnknown keeps the stored state.
//   - While the stored device is in flight (Connecting/Disconnecting) the
//     stored state is kept unless the update carries a settled state
//     (Connected, Disconnected or Failed). Name and metadata still apply.
//   - A zero LastSeen keeps the stored LastSeen.
//
// New devices with StateUnknown start Disconnected.
//
// Returns the emitted Change and true, or false if nothing observable
// changed.
func (r *Registry) Upsert(d Device) (Change, bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.snap.Load()
	existing, ok := cur.byAddress[d.Address]

	if !ok {
		if d.State.Kind == StateUnknown {
			d.State = Disconnected()
		}
		r.publish(cur.with(d))
		change := Change{Kind: ChangeAdded, Device: d, At: r.nowFunc()}
		r.emit(change)
		r.logger.Info("device added", "address", d.Address, "name", d.Name, "state", d.State)
		return change, true
	}

	merged := d
	if d.State.Kind == StateUnknown || (existing.State.InFlight() && !d.State.Settled()) {
		merged.State = existing.State
	}
	if merged.LastSeen.IsZero() {
		merged.LastSeen = existing.LastSeen
	}

	return r.replace(cur, existing, merged)
}

// SetState writes a connection state for an existing device. It is the
// Coordinator's authoritative write path and applies unconditionally.
//
// Parameters:
//   - address: Device to update
//   - state: New connection state (must not be StateUnknown)
//   - observedAt: When the state was observed; zero keeps LastSeen
//
// Returns:
//   - Change: The emitted change (zero if nothing changed)
//   - bool: Whether a change was emitted
//   - error: ErrDeviceNotFound or ErrInvalidState
func (r *Registry) SetState(address Address, state ConnState, observedAt time.Time) (Change, bool, error) {
	if state.Kind == StateUnknown {
		return Change{}, false, ErrInvalidState
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.snap.Load()
	existing, ok := cur.byAddress[address]
	if !ok {
		return Change{}, false, ErrDeviceNotFound
	}

	updated := existing
	updated.State = state
	if !observedAt.IsZero() && observedAt.After(existing.LastSeen) {
		updated.LastSeen = observedAt
	}

	change, emitted := r.replace(cur, existing, updated)
	return change, emitted, nil
}

// replace stores updated over existing and emits if anything observable
// changed. Caller holds writeMu.
func (r *Registry) replace(cur *snapshot, existing, updated Device) (Change, bool) {
	if updated.Equal(existing) {
		return Change{}, false
	}

	r.publish(cur.with(updated))

	if sameIgnoringLastSeen(existing, updated) {
		// Freshness only: stored, not announced.
		return Change{}, false
	}

	change := Change{Kind: ChangeUpdated, Device: updated, Previous: existing, At: r.nowFunc()}
	r.emit(change)
	if existing.State != updated.State {
		r.logger.Debug("device state changed",
			"address", updated.Address,
			"from", existing.State,
			"to", updated.State,
		)
	}
	return change, true
}

// Remove deletes a device. Removing an absent address is a silent no-op.
func (r *Registry) Remove(address Address) (Change, bool) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur := r.snap.Load()
	existing, ok := cur.byAddress[address]
	if !ok {
		return Change{}, false
	}

	r.publish(cur.without(address))
	change := Change{Kind: ChangeRemoved, Device: existing, Previous: existing, At: r.nowFunc()}
	r.emit(change)
	r.logger.Info("device removed", "address", address, "name", existing.Name)
	return change, true
}

func (r *Registry) publish(s *snapshot) {
	r.snap.Store(s)
}

// with returns a copy of s with d inserted or replaced.
func (s *snapshot) with(d Device) *snapshot {
	next := &snapshot{byAddress: make(map[Address]Device, len(s.byAddress)+1)}
	for k, v := range s.byAddress {
		next.byAddress[k] = v
	}
	next.byAddress[d.Address] = d
	next.order()
	return next
}

// without returns a copy of s with address removed.
func (s *snapshot) without(address Address) *snapshot {
	next := &snapshot{byAddress: make(map[Address]Device, len(s.byAddress))}
	for k, v := range s.byAddress {
		if k != address {
			next.byAddress[k] = v
		}
	}
	next.order()
	return next
}

func (s *snapshot) order() {
	s.ordered = make([]Device, 0, len(s.byAddress))
	for _, d := range s.byAddress {
		s.ordered = append(s.ordered, d)
	}
	slices.SortFunc(s.ordered, compareDevices)
}

// SortDevices orders devices the way List does: by display name, case
// insensitive, then by address.
func SortDevices(devices []Device) {
	slices.SortFunc(devices, compareDevices)
}

func compareDevices(a, b Device) int {
	if c := cmp.Compare(strings.ToLower(a.DisplayName()), strings.ToLower(b.DisplayName())); c != 0 {
		return c
	}
	return cmp.Compare(a.Address, b.Address)
}

func sameIgnoringLastSeen(a, b Device) bool {
	b.LastSeen = a.LastSeen
	return a.Equal(b)
}
