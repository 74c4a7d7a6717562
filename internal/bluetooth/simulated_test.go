package bluetooth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

func newTestSimulated() *Simulated {
	return NewSimulated(config.SimulatedConfig{
		Devices: []config.SimulatedDevice{
			{Address: "AA:BB:CC:DD:EE:FF", Name: "Headphones"},
			{Address: "11-22-33-44-55-66", Name: "Keyboard", Connected: true},
			{Address: "not-an-address", Name: "Ignored"},
		},
	})
}

func TestSimulated_ListPairedDevices(t *testing.T) {
	s := newTestSimulated()
	defer s.Close()

	devices, err := s.ListPairedDevices(context.Background())
	if err != nil {
		t.Fatalf("ListPairedDevices() error = %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2 (invalid seed skipped)", len(devices))
	}
	for _, d := range devices {
		if d.Address == addrKeyboard && d.State.Kind != device.StateConnected {
			t.Errorf("keyboard state = %v, want connected", d.State)
		}
	}
}

func TestSimulated_ConnectDisconnect(t *testing.T) {
	s := newTestSimulated()
	defer s.Close()
	ctx := context.Background()

	if err := s.Connect(ctx, addrHeadphones); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Disconnect(ctx, addrKeyboard); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	devices, _ := s.ListPairedDevices(ctx)
	for _, d := range devices {
		switch d.Address {
		case addrHeadphones:
			if d.State.Kind != device.StateConnected {
				t.Errorf("headphones = %v, want connected", d.State)
			}
		case addrKeyboard:
			if d.State.Kind != device.StateDisconnected {
				t.Errorf("keyboard = %v, want disconnected", d.State)
			}
		}
	}
	if s.Calls(addrHeadphones) != 1 {
		t.Errorf("Calls() = %d, want 1", s.Calls(addrHeadphones))
	}
}

func TestSimulated_Failures(t *testing.T) {
	s := newTestSimulated()
	defer s.Close()
	ctx := context.Background()

	s.FailNext(addrHeadphones, ErrDeviceUnreachable)
	if err := s.Connect(ctx, addrHeadphones); !errors.Is(err, ErrDeviceUnreachable) {
		t.Errorf("Connect() error = %v, want ErrDeviceUnreachable", err)
	}
	if err := s.Connect(ctx, addrHeadphones); err != nil {
		t.Errorf("FailNext should apply once, got %v", err)
	}

	unknown := device.MustParseAddress("00:00:00:00:00:01")
	if err := s.Connect(ctx, unknown); !errors.Is(err, ErrDeviceNotPaired) {
		t.Errorf("Connect(unknown) error = %v, want ErrDeviceNotPaired", err)
	}
}

func TestSimulated_LatencyHonoursDeadline(t *testing.T) {
	s := NewSimulated(config.SimulatedConfig{
		Latency: time.Second,
		Devices: []config.SimulatedDevice{{Address: "AA:BB:CC:DD:EE:FF"}},
	})
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := s.Connect(ctx, addrHeadphones); !errors.Is(err, ErrTimeout) {
		t.Errorf("Connect() error = %v, want ErrTimeout", err)
	}
}

func TestSimulated_OutOfBandEvents(t *testing.T) {
	s := newTestSimulated()

	s.SetConnected(addrHeadphones, true)
	s.Pair(device.Device{Address: device.MustParseAddress("00:00:00:00:00:02"), Name: "Mouse"})
	s.Unpair(addrKeyboard)
	s.Unpair(addrKeyboard) // absent: no event

	want := []EventKind{EventConnectionChanged, EventPaired, EventUnpaired}
	for i, kind := range want {
		select {
		case ev := <-s.Events():
			if ev.Kind != kind {
				t.Errorf("event[%d] = %v, want %v", i, ev.Kind, kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	s.Close()
	if _, ok := <-s.Events(); ok {
		t.Error("Events() should be closed after Close")
	}
	if err := s.Connect(context.Background(), addrHeadphones); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrClosed", err)
	}
}
