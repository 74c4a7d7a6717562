package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/bluetray/bluetray/internal/bluetooth"
	"github.com/bluetray/bluetray/internal/device"
)

// Default settings.
const (
	DefaultCooldown         = 5 * time.Second
	DefaultOperationTimeout = 30 * time.Second
	defaultQueueSize        = 64
)

// Logger defines the logging interface used by the Coordinator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Coordinator. Zero values select defaults.
type Options struct {
	// Cooldown is how long a Failed device waits before reverting.
	Cooldown time.Duration
	// OperationTimeout bounds each Gateway connect/disconnect call.
	OperationTimeout time.Duration
	// MaxConcurrentOperations caps Gateway calls in flight across all
	// devices. 0 means unlimited.
	MaxConcurrentOperations int
}

type opKind int

const (
	opConnect opKind = iota + 1
	opDisconnect
)

func (k opKind) String() string {
	if k == opConnect {
		return "connect"
	}
	return "disconnect"
}

// pendingChange is an out-of-band change held back while an operation
// for the same device is in flight.
type pendingChange struct {
	kind       pendingKind
	state      device.ConnState
	device     device.Device
	observedAt time.Time
}

type pendingKind int

const (
	pendingState pendingKind = iota + 1
	pendingUpsert
	pendingRemove
)

type inflightOp struct {
	id    string
	kind  opKind
	start time.Time
}

type cooldownTimer struct {
	gen   uint64
	timer *time.Timer
}

// Coordinator is the only component that calls Gateway Connect/Disconnect
// and the only writer of connection state into the Registry.
//
// All Registry writes happen on the goroutine running Run. Public methods
// post commands to that goroutine and wait for validation to finish;
// Gateway calls run on worker goroutines and report back through the same
// queue, so a device's state machine is never touched concurrently.
type Coordinator struct {
	registry *device.Registry
	gateway  bluetooth.Gateway
	logger   Logger

	cooldown  atomic.Int64
	opTimeout time.Duration
	sem       *semaphore.Weighted

	cmds    chan func()
	done    chan struct{}
	started atomic.Bool
	workers sync.WaitGroup

	inflightCount atomic.Int32

	// Owned by the Run goroutine.
	runCtx    context.Context
	inflight  map[device.Address]inflightOp
	settled   map[device.Address]time.Time // last operation outcome
	pending   map[device.Address][]pendingChange
	cooldowns map[device.Address]cooldownTimer
	gen       uint64
}

// New creates a Coordinator. Call Run to start processing.
//
// Parameters:
//   - registry: The Registry this Coordinator writes to
//   - gateway: OS gateway for connect/disconnect and events
//   - opts: Timing and concurrency settings
func New(registry *device.Registry, gateway bluetooth.Gateway, opts Options) *Coordinator {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}

	c := &Coordinator{
		registry:  registry,
		gateway:   gateway,
		logger:    noopLogger{},
		opTimeout: opts.OperationTimeout,
		cmds:      make(chan func(), defaultQueueSize),
		done:      make(chan struct{}),
		inflight:  make(map[device.Address]inflightOp),
		settled:   make(map[device.Address]time.Time),
		pending:   make(map[device.Address][]pendingChange),
		cooldowns: make(map[device.Address]cooldownTimer),
	}
	c.cooldown.Store(int64(opts.Cooldown))
	if opts.MaxConcurrentOperations > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.MaxConcurrentOperations))
	}
	return c
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// SetCooldown changes the failure cool-down for failures that happen
// after the call. Safe to call at any time.
func (c *Coordinator) SetCooldown(d time.Duration) {
	if d <= 0 {
		d = DefaultCooldown
	}
	c.cooldown.Store(int64(d))
}

// Cooldown returns the current failure cool-down.
func (c *Coordinator) Cooldown() time.Duration {
	return time.Duration(c.cooldown.Load())
}

// InFlight returns the number of operations currently in flight.
func (c *Coordinator) InFlight() int {
	return int(c.inflightCount.Load())
}

// Run processes commands and gateway events until ctx is cancelled.
// On return every in-flight worker has finished and pending cool-downs
// are stopped; later requests fail with ErrClosed.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator: already running")
	}

	c.runCtx = ctx
	events := c.gateway.Events()

	c.logger.Info("coordinator started", "cooldown", c.Cooldown(), "operation_timeout", c.opTimeout)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case cmd := <-c.cmds:
			cmd()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Coordinator) shutdown() {
	close(c.done)
	for addr, cd := range c.cooldowns {
		cd.timer.Stop()
		delete(c.cooldowns, addr)
	}
	c.workers.Wait()
	c.logger.Info("coordinator stopped")
}

// do runs fn on the Run goroutine and returns its result.
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.cmds <- func() { reply <- fn() }:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting. It is used by workers and timers and
// gives up once the coordinator is closed.
func (c *Coordinator) post(fn func()) {
	select {
	case c.cmds <- fn:
	case <-c.done:
	}
}

// RequestConnect starts connecting a device.
//
// It returns once the device has moved to Connecting; the outcome arrives
// later as a Registry change to Connected or Failed(reason).
//
// Returns:
//   - ErrUnknownDevice: address not in the Registry (nothing mutated)
//   - ErrAlreadyInFlight: Connecting or Disconnecting (Gateway not called)
//   - ErrAlreadyConnected: Connected, or Failed while the OS still holds
//     the connection
//   - ErrClosed: coordinator stopped
func (c *Coordinator) RequestConnect(ctx context.Context, address device.Address) error {
	return c.do(ctx, func() error { return c.start(address, opConnect) })
}

// RequestDisconnect starts disconnecting a device.
//
// Returns:
//   - ErrUnknownDevice: address not in the Registry
//   - ErrAlreadyInFlight: Connecting or Disconnecting
//   - ErrNotConnected: the OS does not hold a connection (Disconnected,
//     or Failed reverting to Disconnected)
//   - ErrClosed: coordinator stopped
func (c *Coordinator) RequestDisconnect(ctx context.Context, address device.Address) error {
	return c.do(ctx, func() error { return c.start(address, opDisconnect) })
}

// Toggle disconnects a device the OS holds connected and connects any
// other. A Failed device toggles from its revert target, so a click retries
// the operation that failed. It is the action behind a tray menu click.
func (c *Coordinator) Toggle(ctx context.Context, address device.Address) error {
	return c.do(ctx, func() error {
		d, err := c.registry.Get(address)
		if err != nil {
			return ErrUnknownDevice
		}
		if d.State.Effective() == device.StateConnected {
			return c.start(address, opDisconnect)
		}
		return c.start(address, opConnect)
	})
}

// start validates and launches an operation. Runs on the Run goroutine.
func (c *Coordinator) start(address device.Address, kind opKind) error {
	d, err := c.registry.Get(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}

	if d.State.InFlight() {
		return ErrAlreadyInFlight
	}

	connected := d.State.Effective() == device.StateConnected
	switch {
	case kind == opConnect && connected:
		return ErrAlreadyConnected
	case kind == opDisconnect && !connected:
		return ErrNotConnected
	}

	// A retry from Failed ends its cool-down early.
	c.stopCooldown(address)

	target := device.Connecting()
	if kind == opDisconnect {
		target = device.Disconnecting()
	}
	if _, _, err := c.registry.SetState(address, target, time.Time{}); err != nil {
		return fmt.Errorf("setting %s: %w", target, err)
	}

	op := inflightOp{id: uuid.NewString(), kind: kind, start: time.Now()}
	c.inflight[address] = op
	c.inflightCount.Add(1)

	c.logger.Info("operation started", "op", kind, "op_id", op.id, "address", address, "name", d.Name)

	c.workers.Add(1)
	go c.execute(c.runCtx, address, op)
	return nil
}

// execute performs the Gateway call on a worker goroutine.
func (c *Coordinator) execute(ctx context.Context, address device.Address, op inflightOp) {
	defer c.workers.Done()

	err := c.call(ctx, address, op.kind)
	c.post(func() { c.finish(address, op, err) })
}

func (c *Coordinator) call(ctx context.Context, address device.Address, kind opKind) error {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer c.sem.Release(1)
	}

	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if kind == opConnect {
		return c.gateway.Connect(opCtx, address)
	}
	return c.gateway.Disconnect(opCtx, address)
}

// finish applies an operation outcome, then any changes queued while it
// was in flight. Runs on the Run goroutine.
func (c *Coordinator) finish(address device.Address, op inflightOp, opErr error) {
	completedAt := time.Now()
	delete(c.inflight, address)
	c.inflightCount.Add(-1)
	c.settled[address] = completedAt

	var state device.ConnState
	switch {
	case opErr == nil && op.kind == opConnect:
		state = device.Connected()
	case opErr == nil:
		state = device.Disconnected()
	case op.kind == opConnect:
		state = device.Failed(bluetooth.Reason(opErr), device.StateDisconnected)
	default:
		state = device.Failed(bluetooth.Reason(opErr), device.StateConnected)
	}

	// Outcomes do not advance LastSeen, so notifications queued during the
	// operation are not mistaken for stale ones. Listings taken before
	// completedAt are held back by mergeListed instead.
	if _, _, err := c.registry.SetState(address, state, time.Time{}); err != nil {
		c.logger.Warn("operation outcome for missing device", "op_id", op.id, "address", address, "error", err)
	}

	elapsed := completedAt.Sub(op.start)
	if opErr != nil {
		c.logger.Warn("operation failed",
			"op", op.kind, "op_id", op.id, "address", address,
			"reason", state.Reason, "duration", elapsed, "error", opErr)
		c.startCooldown(address)
	} else {
		c.logger.Info("operation succeeded", "op", op.kind, "op_id", op.id, "address", address, "duration", elapsed)
	}

	c.drainPending(address)
}

// startCooldown schedules the revert of a Failed device.
func (c *Coordinator) startCooldown(address device.Address) {
	c.stopCooldown(address)

	c.gen++
	gen := c.gen
	timer := time.AfterFunc(c.Cooldown(), func() {
		c.post(func() { c.endCooldown(address, gen) })
	})
	c.cooldowns[address] = cooldownTimer{gen: gen, timer: timer}
}

func (c *Coordinator) stopCooldown(address device.Address) {
	if cd, ok := c.cooldowns[address]; ok {
		cd.timer.Stop()
		delete(c.cooldowns, address)
	}
}

func (c *Coordinator) endCooldown(address device.Address, gen uint64) {
	cd, ok := c.cooldowns[address]
	if !ok || cd.gen != gen {
		return
	}
	delete(c.cooldowns, address)

	d, err := c.registry.Get(address)
	if err != nil || d.State.Kind != device.StateFailed {
		return
	}

	revert := device.ConnState{Kind: d.State.RevertTo}
	if revert.Kind == device.StateUnknown {
		revert = device.Disconnected()
	}
	if _, _, err := c.registry.SetState(address, revert, time.Time{}); err == nil {
		c.logger.Debug("cool-down ended", "address", address, "state", revert)
	}
}

// ExternalStateChange applies a connection state reported by the OS
// outside of any request, for example a device switched off or connected
// from the system settings panel.
//
// Notifications observed before the device's LastSeen are stale and
// dropped. While an operation is in flight the change is queued and
// applied, in arrival order, after the operation finishes.
//
// Connecting and Disconnecting are rejected with ErrInvalidState: only an
// operation issued here may put a device in flight.
func (c *Coordinator) ExternalStateChange(ctx context.Context, address device.Address, state device.ConnState, observedAt time.Time) error {
	return c.do(ctx, func() error {
		return c.externalStateChange(address, state, observedAt)
	})
}

func (c *Coordinator) externalStateChange(address device.Address, state device.ConnState, observedAt time.Time) error {
	if state.Kind == device.StateUnknown || state.InFlight() {
		return fmt.Errorf("%w: %s", ErrInvalidState, state)
	}

	d, err := c.registry.Get(address)
	if err != nil {
		c.logger.Debug("state change for unknown device ignored", "address", address, "state", state)
		return nil
	}

	if !observedAt.IsZero() && observedAt.Before(d.LastSeen) {
		c.logger.Debug("stale state change dropped",
			"address", address, "state", state,
			"observed_at", observedAt, "last_seen", d.LastSeen)
		return nil
	}

	if _, busy := c.inflight[address]; busy {
		c.queue(address, pendingChange{kind: pendingState, state: state, observedAt: observedAt})
		return nil
	}

	c.stopCooldown(address)
	if _, _, err := c.registry.SetState(address, state, observedAt); err != nil {
		c.logger.Warn("applying external state change", "address", address, "error", err)
	}
	return nil
}

// DevicePaired adds or updates a device the OS reports as newly paired.
func (c *Coordinator) DevicePaired(ctx context.Context, d device.Device) error {
	return c.do(ctx, func() error {
		c.devicePaired(d)
		return nil
	})
}

func (c *Coordinator) devicePaired(d device.Device) {
	d = reported(d)
	if _, busy := c.inflight[d.Address]; busy {
		c.queue(d.Address, pendingChange{kind: pendingUpsert, device: d})
		return
	}
	c.registry.Upsert(d)
}

// DeviceUnpaired removes a device the OS no longer reports as paired.
func (c *Coordinator) DeviceUnpaired(ctx context.Context, address device.Address) error {
	return c.do(ctx, func() error {
		c.deviceUnpaired(address)
		return nil
	})
}

func (c *Coordinator) deviceUnpaired(address device.Address) {
	if _, busy := c.inflight[address]; busy {
		c.queue(address, pendingChange{kind: pendingRemove})
		return
	}
	c.stopCooldown(address)
	delete(c.settled, address)
	c.registry.Remove(address)
}

// Refresh re-lists paired devices from the Gateway and reconciles the
// Registry: listed devices are upserted, unlisted ones removed. Devices
// with an operation in flight have their update queued instead.
func (c *Coordinator) Refresh(ctx context.Context) error {
	listed, err := c.gateway.ListPairedDevices(ctx)
	if err != nil {
		return fmt.Errorf("listing paired devices: %w", err)
	}

	return c.do(ctx, func() error {
		c.reconcile(listed)
		return nil
	})
}

func (c *Coordinator) reconcile(listed []device.Device) {
	seen := make(map[device.Address]struct{}, len(listed))

	for _, d := range listed {
		d = reported(d)
		seen[d.Address] = struct{}{}

		if _, busy := c.inflight[d.Address]; busy {
			c.queue(d.Address, pendingChange{kind: pendingUpsert, device: d})
			continue
		}

		existing, err := c.registry.Get(d.Address)
		if err == nil {
			d = c.mergeListed(existing, d)
		}
		c.registry.Upsert(d)
	}

	for _, d := range c.registry.List() {
		if _, ok := seen[d.Address]; ok {
			continue
		}
		c.deviceUnpaired(d.Address)
	}

	c.logger.Debug("device list reconciled", "listed", len(listed), "total", c.registry.Count())
}

// reported drops a Connecting or Disconnecting state from a device the
// Gateway reports. Only an operation started here may put a device in
// flight.
func reported(d device.Device) device.Device {
	if d.State.InFlight() {
		d.State = device.ConnState{}
	}
	return d
}

// mergeListed adjusts a listed device before it is upserted over existing.
// A listing older than the stored device, or taken before the device's
// last operation completed, only refreshes metadata. A Failed device whose
// OS state matches its revert target keeps showing the failure until its
// cool-down ends.
func (c *Coordinator) mergeListed(existing, listed device.Device) device.Device {
	stale := !listed.LastSeen.IsZero() && listed.LastSeen.Before(existing.LastSeen)
	if at, ok := c.settled[listed.Address]; ok && listed.LastSeen.Before(at) {
		stale = true
	}
	if stale {
		listed.State = device.ConnState{}
		listed.LastSeen = time.Time{}
		return listed
	}

	if existing.State.Kind == device.StateFailed {
		if listed.State.Kind == existing.State.RevertTo {
			listed.State = device.ConnState{}
		} else if listed.State.Kind != device.StateUnknown {
			c.stopCooldown(listed.Address)
		}
	}
	return listed
}

// handleEvent applies a Gateway event. Runs on the Run goroutine.
func (c *Coordinator) handleEvent(ev bluetooth.Event) {
	switch ev.Kind {
	case bluetooth.EventPaired:
		if ev.Device.LastSeen.IsZero() {
			ev.Device.LastSeen = ev.ObservedAt
		}
		c.devicePaired(ev.Device)
	case bluetooth.EventUnpaired:
		c.deviceUnpaired(ev.Device.Address)
	case bluetooth.EventConnectionChanged:
		if err := c.externalStateChange(ev.Device.Address, ev.Device.State, ev.ObservedAt); err != nil {
			c.logger.Warn("gateway event ignored", "address", ev.Device.Address, "error", err)
		}
	case bluetooth.EventDeviceChanged:
		if _, err := c.registry.Get(ev.Device.Address); err != nil {
			return
		}
		d := ev.Device
		d.State = device.ConnState{}
		d.LastSeen = time.Time{}
		c.registry.Upsert(d)
	default:
		c.logger.Warn("unhandled gateway event", "kind", ev.Kind, "address", ev.Device.Address)
	}
}

func (c *Coordinator) queue(address device.Address, p pendingChange) {
	c.pending[address] = append(c.pending[address], p)
	c.logger.Debug("change deferred until operation completes", "address", address, "pending", len(c.pending[address]))
}

// drainPending applies changes queued for address in arrival order.
func (c *Coordinator) drainPending(address device.Address) {
	queued := c.pending[address]
	delete(c.pending, address)

	for _, p := range queued {
		switch p.kind {
		case pendingState:
			c.externalStateChange(address, p.state, p.observedAt) //nolint:errcheck // validated before queueing
		case pendingUpsert:
			// The listing predates the outcome just applied, so
			// mergeListed keeps only its metadata.
			if existing, err := c.registry.Get(address); err == nil {
				p.device = c.mergeListed(existing, p.device)
			}
			c.registry.Upsert(p.device)
		case pendingRemove:
			c.deviceUnpaired(address)
		}
	}
}
