package tray

import (
	"sync"

	"github.com/bluetray/bluetray/internal/device"
)

// widget is the part of *systray.MenuItem the presenter drives.
type widget interface {
	SetTitle(title string)
	SetTooltip(tooltip string)
	Show()
	Hide()
	Enable()
	Disable()
	Check()
	Uncheck()
}

// slots maps a Menu onto pre-allocated widgets. The tray shell cannot
// remove items, so device entries are a fixed pool that is shown, hidden
// and retitled on every redraw.
type slots struct {
	devices     []widget
	placeholder widget
	overflow    widget

	mu        sync.RWMutex
	addresses []device.Address
}

func newSlots(devices []widget, placeholder, overflow widget) *slots {
	return &slots{
		devices:     devices,
		placeholder: placeholder,
		overflow:    overflow,
		addresses:   make([]device.Address, len(devices)),
	}
}

// apply updates every widget to match m.
func (s *slots) apply(m Menu) {
	entries := m.Devices()
	addresses := make([]device.Address, len(s.devices))

	for i, w := range s.devices {
		if i >= len(entries) {
			w.Hide()
			continue
		}
		it := entries[i]
		addresses[i] = it.Address
		w.SetTitle(it.Title)
		w.SetTooltip(it.Tooltip)
		if it.Enabled {
			w.Enable()
		} else {
			w.Disable()
		}
		if it.Checked {
			w.Check()
		} else {
			w.Uncheck()
		}
		w.Show()
	}

	s.placeholder.Hide()
	s.overflow.Hide()
	for _, it := range m.Items {
		switch it.Kind {
		case ItemPlaceholder:
			s.placeholder.SetTitle(it.Title)
			s.placeholder.Show()
		case ItemOverflow:
			s.overflow.SetTitle(it.Title)
			s.overflow.Show()
		}
	}

	s.mu.Lock()
	s.addresses = addresses
	s.mu.Unlock()
}

// address returns the device shown in slot i.
func (s *slots) address(i int) (device.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.addresses) || s.addresses[i] == "" {
		return "", false
	}
	return s.addresses[i], true
}
