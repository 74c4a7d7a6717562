package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/infrastructure/mqtt"
)

var addrA = device.MustParseAddress("AA:BB:CC:DD:EE:FF")

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][]byte
	order     []string
	handler   mqtt.MessageHandler
	subErr    error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{published: make(map[string][]byte)}
}

func (f *fakeBroker) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = payload
	f.order = append(f.order, topic)
	return nil
}

func (f *fakeBroker) Subscribe(_ string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.handler = handler
	return nil
}

func (f *fakeBroker) Topics() mqtt.Topics { return mqtt.NewTopics("bluetray") }

func (f *fakeBroker) get(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.published[topic]
	return p, ok
}

type fakeCommander struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeCommander) record(action string, address device.Address) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action+" "+address.String())
	return f.err
}

func (f *fakeCommander) RequestConnect(_ context.Context, a device.Address) error {
	return f.record("connect", a)
}

func (f *fakeCommander) RequestDisconnect(_ context.Context, a device.Address) error {
	return f.record("disconnect", a)
}

func (f *fakeCommander) Toggle(_ context.Context, a device.Address) error {
	return f.record("toggle", a)
}

func TestHandleCommand(t *testing.T) {
	topic := "bluetray/device/AA:BB:CC:DD:EE:FF/command"

	tests := []struct {
		name     string
		topic    string
		payload  string
		cmdErr   error
		wantCall string
		wantErr  error
	}{
		{name: "connect", topic: topic, payload: `{"action":"connect"}`, wantCall: "connect AA:BB:CC:DD:EE:FF"},
		{name: "disconnect", topic: topic, payload: `{"action":"disconnect"}`, wantCall: "disconnect AA:BB:CC:DD:EE:FF"},
		{name: "toggle lower-case address", topic: "bluetray/device/aa-bb-cc-dd-ee-ff/command", payload: `{"action":"toggle"}`, wantCall: "toggle AA:BB:CC:DD:EE:FF"},
		{name: "unknown action", topic: topic, payload: `{"action":"pair"}`, wantErr: ErrInvalidCommand},
		{name: "bad json", topic: topic, payload: `connect`, wantErr: ErrInvalidCommand},
		{name: "bad address", topic: "bluetray/device/nope/command", payload: `{"action":"connect"}`, wantErr: ErrInvalidCommand},
		{name: "rejected by coordinator", topic: topic, payload: `{"action":"connect"}`, cmdErr: errBusy, wantCall: "connect AA:BB:CC:DD:EE:FF", wantErr: errBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &fakeCommander{err: tt.cmdErr}
			b := New(device.NewRegistry(), newFakeBroker(), cmds)

			err := b.HandleCommand(context.Background(), tt.topic, []byte(tt.payload))
			if tt.wantErr == nil && err != nil {
				t.Fatalf("HandleCommand() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("HandleCommand() error = %v, want %v", err, tt.wantErr)
			}

			switch {
			case tt.wantCall == "" && len(cmds.calls) != 0:
				t.Errorf("unexpected calls %v", cmds.calls)
			case tt.wantCall != "" && (len(cmds.calls) != 1 || cmds.calls[0] != tt.wantCall):
				t.Errorf("calls = %v, want [%s]", cmds.calls, tt.wantCall)
			}
		})
	}
}

var errBusy = errors.New("busy")

func TestBridge_Run(t *testing.T) {
	reg := device.NewRegistry()
	reg.Upsert(device.Device{Address: addrA, Name: "Headphones", LastSeen: time.Now()})

	broker := newFakeBroker()
	cmds := &fakeCommander{}
	b := New(reg, broker, cmds)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	stateTopic := "bluetray/device/AA:BB:CC:DD:EE:FF/state"
	waitFor(t, func() bool {
		_, ok := broker.get(stateTopic)
		return ok
	})

	if _, _, err := reg.SetState(addrA, device.Connected(), time.Time{}); err != nil {
		t.Fatalf("SetState() error = %v", err)
	}
	waitFor(t, func() bool {
		p, _ := broker.get(stateTopic)
		var msg StateMessage
		return json.Unmarshal(p, &msg) == nil && msg.Connected && msg.State == device.StateConnected
	})

	broker.mu.Lock()
	handler := broker.handler
	broker.mu.Unlock()
	if handler == nil {
		t.Fatal("command handler not subscribed")
	}
	if err := handler("bluetray/device/AA:BB:CC:DD:EE:FF/command", []byte(`{"action":"disconnect"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	reg.Remove(addrA)
	waitFor(t, func() bool {
		p, ok := broker.get(stateTopic)
		return ok && len(p) == 0
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestBridge_RunSubscribeError(t *testing.T) {
	broker := newFakeBroker()
	broker.subErr = mqtt.ErrNotConnected

	err := New(device.NewRegistry(), broker, &fakeCommander{}).Run(context.Background())
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Run() error = %v, want ErrNotConnected", err)
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
