package tray

import (
	"fmt"

	"github.com/bluetray/bluetray/internal/device"
)

// Fixed menu titles.
const (
	TitleAbout     = "About Bluetray"
	TitleRefresh   = "Refresh devices"
	TitleQuit      = "Quit"
	TitleNoDevices = "No paired devices"
)

// ItemKind identifies the role of a menu entry.
type ItemKind int

// Menu entry kinds.
const (
	ItemAbout ItemKind = iota
	ItemSeparator
	ItemDevice
	ItemPlaceholder
	ItemOverflow
	ItemRefresh
	ItemQuit
)

// Item is one rendered menu entry.
type Item struct {
	Kind    ItemKind
	Title   string
	Tooltip string
	Enabled bool
	Checked bool

	// Address is set for ItemDevice.
	Address device.Address
}

// Menu is the full menu model for one Registry snapshot.
type Menu struct {
	Items   []Item
	Tooltip string
}

// Devices returns the device entries in display order.
func (m Menu) Devices() []Item {
	var out []Item
	for _, it := range m.Items {
		if it.Kind == ItemDevice {
			out = append(out, it)
		}
	}
	return out
}

// BuildMenu renders devices as the tray menu:
//
//	About Bluetray
//	---
//	<one entry per device, at most maxDevices>
//	---
//	Refresh devices
//	Quit
//
// Devices keep the order they are given in (the Registry's display
// order). Entries with an operation in flight or a pending failure are
// disabled so the user cannot click them twice.
func BuildMenu(devices []device.Device, maxDevices int) Menu {
	items := make([]Item, 0, len(devices)+6)
	items = append(items,
		Item{Kind: ItemAbout, Title: TitleAbout, Enabled: true},
		Item{Kind: ItemSeparator},
	)

	shown := devices
	if maxDevices > 0 && len(shown) > maxDevices {
		shown = shown[:maxDevices]
	}

	if len(devices) == 0 {
		items = append(items, Item{Kind: ItemPlaceholder, Title: TitleNoDevices})
	}
	for _, d := range shown {
		items = append(items, deviceItem(d))
	}
	if hidden := len(devices) - len(shown); hidden > 0 {
		items = append(items, Item{Kind: ItemOverflow, Title: fmt.Sprintf("%d more…", hidden)})
	}

	items = append(items,
		Item{Kind: ItemSeparator},
		Item{Kind: ItemRefresh, Title: TitleRefresh, Enabled: true},
		Item{Kind: ItemQuit, Title: TitleQuit, Enabled: true},
	)

	return Menu{Items: items, Tooltip: Tooltip(devices)}
}

func deviceItem(d device.Device) Item {
	it := Item{
		Kind:    ItemDevice,
		Address: d.Address,
		Title:   Glyph(d.State.Kind) + " " + d.DisplayName(),
		Checked: d.State.Kind == device.StateConnected,
	}

	switch d.State.Kind {
	case device.StateConnected:
		it.Enabled = true
		it.Tooltip = "Click to disconnect " + d.Address.String()
	case device.StateDisconnected:
		it.Enabled = true
		it.Tooltip = "Click to connect " + d.Address.String()
	case device.StateConnecting:
		it.Title += " (connecting…)"
		it.Tooltip = "Connecting"
	case device.StateDisconnecting:
		it.Title += " (disconnecting…)"
		it.Tooltip = "Disconnecting"
	case device.StateFailed:
		reason := d.State.Reason
		if reason == "" {
			reason = "failed"
		}
		it.Title += " (" + reason + ")"
		it.Tooltip = "Last operation failed: " + reason
	}
	return it
}

// Glyph returns the status marker shown before a device name.
func Glyph(kind device.StateKind) string {
	switch kind {
	case device.StateConnected:
		return "●"
	case device.StateConnecting, device.StateDisconnecting:
		return "◌"
	case device.StateFailed:
		return "⚠"
	default:
		return "○"
	}
}

// Tooltip summarises paired and connected counts for the tray icon.
func Tooltip(devices []device.Device) string {
	connected, busy, failed := 0, 0, 0
	for _, d := range devices {
		switch {
		case d.State.Kind == device.StateConnected:
			connected++
		case d.State.InFlight():
			busy++
		case d.State.Kind == device.StateFailed:
			failed++
		}
	}

	s := fmt.Sprintf("Bluetray: %d paired, %d connected", len(devices), connected)
	if busy > 0 {
		s += fmt.Sprintf(", %d busy", busy)
	}
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	return s
}
