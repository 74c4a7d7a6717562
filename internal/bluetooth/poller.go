package bluetooth

import (
	"context"
	"time"

	"github.com/bluetray/bluetray/internal/device"
)

// Logger defines the logging interface used by gateways.
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

// ListFunc lists paired devices. It is the only OS dependency of Poller.
type ListFunc func(ctx context.Context) ([]device.Device, error)

// Poller turns periodic paired-device listings into change events for
// stacks that offer no push notifications.
//
// Each poll is diffed against the previous one:
//   - address appeared    → EventPaired
//   - address disappeared → EventUnpaired
//   - connected flag flip → EventConnectionChanged
//   - name/flags changed  → EventDeviceChanged
type Poller struct {
	list     ListFunc
	interval time.Duration
	events   chan Event
	known    map[device.Address]device.Device
	logger   Logger
	now      func() time.Time
}

// NewPoller creates a poller. Events is buffered; sends block (honouring
// the Run context) when the consumer falls behind.
func NewPoller(list ListFunc, interval time.Duration) *Poller {
	return &Poller{
		list:     list,
		interval: interval,
		events:   make(chan Event, 32),
		known:    make(map[device.Address]device.Device),
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// Events returns the event channel. It is closed when Run returns.
func (p *Poller) Events() <-chan Event {
	return p.events
}

// Seed sets the baseline so that devices already known at startup are not
// reported as newly paired. Must be called before Run.
func (p *Poller) Seed(devices []device.Device) {
	for _, d := range devices {
		p.known[d.Address] = d
	}
}

// Run polls until ctx is cancelled, then closes Events.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.events)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("paired device poll failed", "error", err)
			}
		}
	}
}

// Poll performs one listing and emits the resulting events.
func (p *Poller) Poll(ctx context.Context) error {
	devices, err := p.list(ctx)
	if err != nil {
		return err
	}

	at := p.now()
	seen := make(map[device.Address]struct{}, len(devices))

	for _, d := range devices {
		seen[d.Address] = struct{}{}
		prev, ok := p.known[d.Address]
		p.known[d.Address] = d

		switch {
		case !ok:
			if !p.send(ctx, Event{Kind: EventPaired, Device: d, ObservedAt: at}) {
				return ctx.Err()
			}
		case prev.State.Kind != d.State.Kind:
			if !p.send(ctx, Event{Kind: EventConnectionChanged, Device: d, ObservedAt: at}) {
				return ctx.Err()
			}
		case prev.Name != d.Name || prev.Authenticated != d.Authenticated || prev.Remembered != d.Remembered:
			if !p.send(ctx, Event{Kind: EventDeviceChanged, Device: d, ObservedAt: at}) {
				return ctx.Err()
			}
		}
	}

	for addr := range p.known {
		if _, ok := seen[addr]; ok {
			continue
		}
		delete(p.known, addr)
		if !p.send(ctx, Event{Kind: EventUnpaired, Device: device.Device{Address: addr}, ObservedAt: at}) {
			return ctx.Err()
		}
	}

	return nil
}

func (p *Poller) send(ctx context.Context, ev Event) bool {
	select {
	case p.events <- ev:
		p.logger.Debug("gateway event", "kind", ev.Kind, "address", ev.Device.Address)
		return true
	case <-ctx.Done():
		return false
	}
}
