package bluetooth

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

// Simulated is an in-memory Gateway for development, headless demos and
// tests. It never touches real hardware.
//
// Operations take Latency to complete, fail with probability FailRate,
// and can be forced to fail for a specific device with FailNext.
// Out-of-band changes are injected with Pair, Unpair and SetConnected.
type Simulated struct {
	mu       sync.Mutex
	devices  map[device.Address]device.Device
	failNext map[device.Address]error
	latency  time.Duration
	failRate float64
	rng      *rand.Rand
	calls    map[device.Address]int

	events    chan Event
	closed    bool
	closeOnce sync.Once
}

// NewSimulated creates a simulated gateway seeded from configuration.
// Invalid seed addresses are skipped.
func NewSimulated(cfg config.SimulatedConfig) *Simulated {
	s := &Simulated{
		devices:  make(map[device.Address]device.Device),
		failNext: make(map[device.Address]error),
		latency:  cfg.Latency,
		failRate: cfg.FailRate,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6274)), //nolint:gosec // simulation only
		calls:    make(map[device.Address]int),
		events:   make(chan Event, 32),
	}

	now := time.Now()
	for _, sd := range cfg.Devices {
		addr, err := device.ParseAddress(sd.Address)
		if err != nil {
			continue
		}
		state := device.Disconnected()
		if sd.Connected {
			state = device.Connected()
		}
		s.devices[addr] = device.Device{
			Address:       addr,
			Name:          sd.Name,
			State:         state,
			LastSeen:      now,
			Authenticated: true,
			Remembered:    true,
		}
	}
	return s
}

// ListPairedDevices returns the simulated paired devices.
func (s *Simulated) ListPairedDevices(ctx context.Context) ([]device.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	now := time.Now()
	out := make([]device.Device, 0, len(s.devices))
	for addr, d := range s.devices {
		d.LastSeen = now
		s.devices[addr] = d
		out = append(out, d)
	}
	return out, nil
}

// Connect simulates connecting a paired device.
func (s *Simulated) Connect(ctx context.Context, address device.Address) error {
	return s.operate(ctx, address, device.StateConnected)
}

// Disconnect simulates disconnecting a device.
func (s *Simulated) Disconnect(ctx context.Context, address device.Address) error {
	return s.operate(ctx, address, device.StateDisconnected)
}

func (s *Simulated) operate(ctx context.Context, address device.Address, target device.StateKind) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.calls[address]++
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrTimeout
			}
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[address]
	if !ok {
		return ErrDeviceNotPaired
	}
	if err, ok := s.failNext[address]; ok {
		delete(s.failNext, address)
		return err
	}
	if s.failRate > 0 && s.rng.Float64() < s.failRate {
		return ErrDeviceUnreachable
	}

	d.State = device.ConnState{Kind: target}
	d.LastSeen = time.Now()
	d.LastUsed = d.LastSeen
	s.devices[address] = d
	return nil
}

// Events returns the out-of-band event channel.
func (s *Simulated) Events() <-chan Event {
	return s.events
}

// Close stops the gateway and closes Events.
func (s *Simulated) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
	})
	return nil
}

// FailNext makes the next Connect or Disconnect of address return err.
func (s *Simulated) FailNext(address device.Address, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[address] = err
}

// Calls returns how many Connect/Disconnect calls address has received.
func (s *Simulated) Calls(address device.Address) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[address]
}

// Pair adds a device and emits EventPaired.
func (s *Simulated) Pair(d device.Device) {
	if d.State.Kind == device.StateUnknown {
		d.State = device.Disconnected()
	}
	d.LastSeen = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.Address] = d
	s.emitLocked(Event{Kind: EventPaired, Device: d, ObservedAt: d.LastSeen})
}

// Unpair removes a device and emits EventUnpaired.
func (s *Simulated) Unpair(address device.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[address]; !ok {
		return
	}
	delete(s.devices, address)
	s.emitLocked(Event{Kind: EventUnpaired, Device: device.Device{Address: address}, ObservedAt: time.Now()})
}

// SetConnected changes a device's connection out of band (as if from the
// OS settings panel) and emits EventConnectionChanged.
func (s *Simulated) SetConnected(address device.Address, connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[address]
	if !ok {
		return
	}
	if connected {
		d.State = device.Connected()
	} else {
		d.State = device.Disconnected()
	}
	d.LastSeen = time.Now()
	s.devices[address] = d
	s.emitLocked(Event{Kind: EventConnectionChanged, Device: d, ObservedAt: d.LastSeen})
}

// emitLocked delivers ev unless the buffer is full or the gateway is
// closed. Caller holds mu.
func (s *Simulated) emitLocked(ev Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}
