package tray

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluetray/bluetray/internal/bluetooth"
	"github.com/bluetray/bluetray/internal/coordinator"
	"github.com/bluetray/bluetray/internal/device"
)

// clickTimeout bounds how long a click waits for the coordinator to
// accept it. The OS operation itself runs in the background.
const clickTimeout = 5 * time.Second

// refreshTimeout bounds a "Refresh devices" click.
const refreshTimeout = 30 * time.Second

// ErrUnsupported is returned by Run on platforms without a tray shell.
var ErrUnsupported = errors.New("tray: not supported on this platform")

// Commander is the coordinator surface the tray drives.
// *coordinator.Coordinator satisfies it.
type Commander interface {
	Toggle(ctx context.Context, address device.Address) error
	Refresh(ctx context.Context) error
}

// Logger defines the logging interface used by the Presenter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures the Presenter.
type Options struct {
	// MaxDevices is the number of device menu slots.
	MaxDevices int
	// Version is shown by the About entry.
	Version string
	// OnQuit is called when the user picks Quit. It should cancel the
	// application context; Run returns once the context is done.
	OnQuit func()
}

// Presenter renders the Registry as the tray menu and turns clicks into
// Coordinator requests. It never writes to the Registry.
type Presenter struct {
	registry *device.Registry
	commands Commander
	notifier *Notifier
	opts     Options
	logger   Logger

	// Set by the shell once widgets exist.
	slots      *slots
	setTooltip func(string)
}

// New creates a presenter. notifier may be nil.
func New(registry *device.Registry, commands Commander, notifier *Notifier, opts Options) *Presenter {
	if opts.MaxDevices < 1 {
		opts.MaxDevices = 1
	}
	if notifier == nil {
		notifier = NewNotifier(false)
	}
	return &Presenter{
		registry:   registry,
		commands:   commands,
		notifier:   notifier,
		opts:       opts,
		logger:     noopLogger{},
		setTooltip: func(string) {},
	}
}

// SetLogger sets the logger for the presenter.
func (p *Presenter) SetLogger(logger Logger) {
	p.logger = logger
}

// Notifier returns the presenter's notifier so its setting can be
// hot-reloaded.
func (p *Presenter) Notifier() *Notifier {
	return p.notifier
}

// redraw rebuilds the menu from the current Registry snapshot.
func (p *Presenter) redraw() {
	m := BuildMenu(p.registry.List(), p.opts.MaxDevices)
	if p.slots != nil {
		p.slots.apply(m)
	}
	p.setTooltip(m.Tooltip)
}

// watch redraws on every Registry change until ctx is done. Redraws read
// a fresh snapshot, so a dropped change only delays the next redraw.
func (p *Presenter) watch(ctx context.Context, sub *device.Subscription) {
	p.redraw()
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-sub.C:
			if !ok {
				return
			}
			if sent, err := p.notifier.Change(change); err != nil {
				p.logger.Warn("failure notification not shown", "address", change.Device.Address, "error", err)
			} else if sent {
				p.logger.Debug("failure notification shown", "address", change.Device.Address)
			}
			p.redraw()
		}
	}
}

// clickDevice toggles the device shown in slot i.
func (p *Presenter) clickDevice(ctx context.Context, i int) {
	address, ok := p.slots.address(i)
	if !ok {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, clickTimeout)
	defer cancel()

	err := p.commands.Toggle(cctx, address)
	switch {
	case err == nil:
		p.logger.Debug("tray toggle accepted", "address", address)
	case errors.Is(err, coordinator.ErrAlreadyInFlight), errors.Is(err, coordinator.ErrClosed):
		// Stale click on an entry that is about to be disabled.
		p.logger.Debug("tray toggle ignored", "address", address, "error", err)
	default:
		p.logger.Warn("tray toggle rejected", "address", address, "error", err)
	}
}

// clickRefresh re-reads the paired device list.
func (p *Presenter) clickRefresh(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	if err := p.commands.Refresh(cctx); err != nil {
		p.logger.Warn("refresh failed", "error", err)
		if nerr := p.notifier.Info("Bluetooth", "Could not refresh devices: "+bluetooth.Reason(err)); nerr != nil {
			p.logger.Debug("notification not shown", "error", nerr)
		}
		return
	}
	p.logger.Info("devices refreshed", "count", p.registry.Count())
}

func (p *Presenter) clickAbout() {
	msg := fmt.Sprintf("Bluetray %s\n%s", p.opts.Version, Tooltip(p.registry.List()))
	if err := p.notifier.Info(TitleAbout, msg); err != nil {
		p.logger.Debug("about notification not shown", "error", err)
	}
}

func (p *Presenter) quit() {
	p.logger.Info("quit selected from tray")
	if p.opts.OnQuit != nil {
		p.opts.OnQuit()
	}
}
