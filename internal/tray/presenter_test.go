package tray

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bluetray/bluetray/internal/bluetooth"
	"github.com/bluetray/bluetray/internal/coordinator"
	"github.com/bluetray/bluetray/internal/device"
)

type widgetState struct {
	title   string
	tooltip string
	visible bool
	enabled bool
	checked bool
}

type fakeWidget struct {
	mu sync.Mutex
	widgetState
}

func (w *fakeWidget) SetTitle(s string)   { w.mu.Lock(); w.title = s; w.mu.Unlock() }
func (w *fakeWidget) SetTooltip(s string) { w.mu.Lock(); w.tooltip = s; w.mu.Unlock() }
func (w *fakeWidget) Show()               { w.mu.Lock(); w.visible = true; w.mu.Unlock() }
func (w *fakeWidget) Hide()               { w.mu.Lock(); w.visible = false; w.mu.Unlock() }
func (w *fakeWidget) Enable()             { w.mu.Lock(); w.enabled = true; w.mu.Unlock() }
func (w *fakeWidget) Disable()            { w.mu.Lock(); w.enabled = false; w.mu.Unlock() }
func (w *fakeWidget) Check()              { w.mu.Lock(); w.checked = true; w.mu.Unlock() }
func (w *fakeWidget) Uncheck()            { w.mu.Lock(); w.checked = false; w.mu.Unlock() }

func (w *fakeWidget) snapshot() widgetState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.widgetState
}

func newFakeSlots(n int) (*slots, []*fakeWidget, *fakeWidget, *fakeWidget) {
	fakes := make([]*fakeWidget, n)
	widgets := make([]widget, n)
	for i := range fakes {
		fakes[i] = &fakeWidget{}
		widgets[i] = fakes[i]
	}
	placeholder, overflow := &fakeWidget{}, &fakeWidget{}
	return newSlots(widgets, placeholder, overflow), fakes, placeholder, overflow
}

func TestSlots_Apply(t *testing.T) {
	s, fakes, placeholder, overflow := newFakeSlots(2)

	s.apply(BuildMenu([]device.Device{
		{Address: addrA, Name: "Headphones", State: device.Connected()},
		{Address: addrB, Name: "Keyboard", State: device.Connecting()},
		{Address: addrC, Name: "Mouse", State: device.Disconnected()},
	}, 2))

	a, b := fakes[0].snapshot(), fakes[1].snapshot()
	if a.title != "● Headphones" || !a.visible || !a.enabled || !a.checked {
		t.Errorf("slot 0 = %+v", a)
	}
	if b.title != "◌ Keyboard (connecting…)" || !b.visible || b.enabled || b.checked {
		t.Errorf("slot 1 = %+v", b)
	}
	if placeholder.snapshot().visible {
		t.Error("placeholder visible with devices present")
	}
	if o := overflow.snapshot(); !o.visible || o.title != "1 more…" {
		t.Errorf("overflow = %+v", o)
	}
	if got, ok := s.address(1); !ok || got != addrB {
		t.Errorf("address(1) = %q, %v", got, ok)
	}

	// Shrinking hides stale slots and forgets their addresses.
	s.apply(BuildMenu(nil, 2))
	if fakes[0].snapshot().visible || fakes[1].snapshot().visible {
		t.Error("device slots still visible after devices removed")
	}
	if !placeholder.snapshot().visible {
		t.Error("placeholder hidden with no devices")
	}
	if _, ok := s.address(0); ok {
		t.Error("address(0) still mapped after devices removed")
	}
	if _, ok := s.address(5); ok {
		t.Error("address(5) out of range mapped")
	}
}

type fakeCommands struct {
	mu         sync.Mutex
	toggles    []device.Address
	toggleErr  error
	refreshes  int
	refreshErr error
}

func (f *fakeCommands) Toggle(_ context.Context, a device.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toggles = append(f.toggles, a)
	return f.toggleErr
}

func (f *fakeCommands) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshErr
}

type sentNote struct{ title, message string }

type fakeSender struct {
	mu   sync.Mutex
	sent []sentNote
	err  error
}

func (f *fakeSender) send(title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNote{title, message})
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestPresenter(t *testing.T, notify bool) (*Presenter, *device.Registry, *fakeCommands, *fakeSender, []*fakeWidget) {
	t.Helper()

	reg := device.NewRegistry()
	reg.Upsert(device.Device{Address: addrA, Name: "Headphones", State: device.Disconnected(), LastSeen: time.Now()})
	reg.Upsert(device.Device{Address: addrB, Name: "Keyboard", State: device.Connected(), LastSeen: time.Now()})

	sender := &fakeSender{}
	n := NewNotifier(notify)
	n.send = sender.send

	cmds := &fakeCommands{}
	p := New(reg, cmds, n, Options{MaxDevices: 4, Version: "1.2.3"})

	s, fakes, _, _ := newFakeSlots(4)
	p.slots = s
	return p, reg, cmds, sender, fakes
}

func TestPresenter_ClickDevice(t *testing.T) {
	p, _, cmds, _, _ := newTestPresenter(t, false)
	p.redraw()

	// Slots follow name order: Headphones, Keyboard.
	p.clickDevice(context.Background(), 1)
	p.clickDevice(context.Background(), 3) // empty slot

	if len(cmds.toggles) != 1 || cmds.toggles[0] != addrB {
		t.Errorf("toggles = %v, want [%s]", cmds.toggles, addrB)
	}
}

func TestPresenter_ClickDeviceErrors(t *testing.T) {
	for _, err := range []error{coordinator.ErrAlreadyInFlight, coordinator.ErrClosed, errors.New("boom")} {
		p, _, cmds, _, _ := newTestPresenter(t, false)
		cmds.toggleErr = err
		p.redraw()
		p.clickDevice(context.Background(), 0)
		if len(cmds.toggles) != 1 {
			t.Errorf("%v: toggles = %v", err, cmds.toggles)
		}
	}
}

func TestPresenter_ClickRefresh(t *testing.T) {
	p, _, cmds, sender, _ := newTestPresenter(t, false)

	p.clickRefresh(context.Background())
	if cmds.refreshes != 1 || sender.count() != 0 {
		t.Errorf("refreshes = %d, notes = %d", cmds.refreshes, sender.count())
	}

	cmds.refreshErr = bluetooth.ErrBluetoothUnavailable
	p.clickRefresh(context.Background())
	if sender.count() != 1 || !strings.Contains(sender.sent[0].message, "bluetooth unavailable") {
		t.Errorf("refresh failure notes = %+v", sender.sent)
	}
}

func TestPresenter_ClickAbout(t *testing.T) {
	p, _, _, sender, _ := newTestPresenter(t, false)
	p.clickAbout()
	if sender.count() != 1 {
		t.Fatalf("notes = %d, want 1", sender.count())
	}
	n := sender.sent[0]
	if n.title != TitleAbout || !strings.Contains(n.message, "Bluetray 1.2.3") || !strings.Contains(n.message, "2 paired") {
		t.Errorf("about note = %+v", n)
	}
}

func TestPresenter_Quit(t *testing.T) {
	called := false
	p := New(device.NewRegistry(), &fakeCommands{}, nil, Options{OnQuit: func() { called = true }})
	p.quit()
	if !called {
		t.Error("OnQuit not called")
	}
}

func TestPresenter_Watch(t *testing.T) {
	p, reg, _, sender, fakes := newTestPresenter(t, true)

	var tooltipMu sync.Mutex
	tooltip := ""
	p.setTooltip = func(s string) {
		tooltipMu.Lock()
		tooltip = s
		tooltipMu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := reg.Subscribe(device.DefaultSubscriptionBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.watch(ctx, sub)
	}()

	waitFor(t, func() bool {
		tooltipMu.Lock()
		defer tooltipMu.Unlock()
		return tooltip == "Bluetray: 2 paired, 1 connected"
	})

	if _, _, err := reg.SetState(addrA, device.Connecting(), time.Time{}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	if _, _, err := reg.SetState(addrA, device.Failed("timeout", device.StateDisconnected), time.Time{}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}

	waitFor(t, func() bool {
		for _, f := range fakes {
			if f.snapshot().title == "⚠ Headphones (timeout)" {
				return true
			}
		}
		return false
	})
	waitFor(t, func() bool { return sender.count() == 1 })

	sender.mu.Lock()
	msg := sender.sent[0].message
	sender.mu.Unlock()
	if msg != "Could not connect to Headphones: timeout" {
		t.Errorf("notification = %q", msg)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancel")
	}
	sub.Close()
}

func TestFailureMessage(t *testing.T) {
	headphones := func(s device.ConnState) device.Device {
		return device.Device{Address: addrA, Name: "Headphones", State: s}
	}

	tests := []struct {
		name    string
		change  device.Change
		want    string
		wantNil bool
	}{
		{
			name:   "connect failed",
			change: device.Change{Kind: device.ChangeUpdated, Previous: headphones(device.Connecting()), Device: headphones(device.Failed("device unreachable", device.StateDisconnected))},
			want:   "Could not connect to Headphones: device unreachable",
		},
		{
			name:   "disconnect failed",
			change: device.Change{Kind: device.ChangeUpdated, Previous: headphones(device.Disconnecting()), Device: headphones(device.Failed("", device.StateConnected))},
			want:   "Could not disconnect from Headphones: unknown error",
		},
		{
			name:    "already failed",
			change:  device.Change{Kind: device.ChangeUpdated, Previous: headphones(device.Failed("timeout", device.StateDisconnected)), Device: headphones(device.Failed("timeout", device.StateDisconnected))},
			wantNil: true,
		},
		{
			name:    "connected",
			change:  device.Change{Kind: device.ChangeUpdated, Previous: headphones(device.Connecting()), Device: headphones(device.Connected())},
			wantNil: true,
		},
		{
			name:    "added",
			change:  device.Change{Kind: device.ChangeAdded, Device: headphones(device.Failed("timeout", device.StateDisconnected))},
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, msg, ok := FailureMessage(tt.change)
			if ok == tt.wantNil {
				t.Fatalf("ok = %v, want %v", ok, !tt.wantNil)
			}
			if msg != tt.want {
				t.Errorf("message = %q, want %q", msg, tt.want)
			}
		})
	}
}

func TestNotifier_Disabled(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(false)
	n.send = sender.send

	change := device.Change{
		Kind:     device.ChangeUpdated,
		Previous: device.Device{Address: addrA, State: device.Connecting()},
		Device:   device.Device{Address: addrA, State: device.Failed("timeout", device.StateDisconnected)},
	}
	if sent, err := n.Change(change); sent || err != nil {
		t.Errorf("Change() = %v, %v while disabled", sent, err)
	}

	n.SetEnabled(true)
	sender.err = errors.New("no notification daemon")
	if sent, err := n.Change(change); !sent || err == nil {
		t.Errorf("Change() = %v, %v, want attempted with error", sent, err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
