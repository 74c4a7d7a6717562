package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/infrastructure/mqtt"
)

const commandTimeout = 5 * time.Second

// Command actions accepted on the device command topic.
const (
	ActionConnect    = "connect"
	ActionDisconnect = "disconnect"
	ActionToggle     = "toggle"
)

// ErrInvalidCommand is returned for a malformed command message.
var ErrInvalidCommand = errors.New("mqttbridge: invalid command")

// Logger defines the logging interface used by the Bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Broker is the subset of *mqtt.Client the bridge uses.
type Broker interface {
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Topics() mqtt.Topics
}

// Commander issues connection requests. *coordinator.Coordinator
// satisfies it.
type Commander interface {
	RequestConnect(ctx context.Context, address device.Address) error
	RequestDisconnect(ctx context.Context, address device.Address) error
	Toggle(ctx context.Context, address device.Address) error
}

// StateMessage is the retained JSON payload on a device state topic.
type StateMessage struct {
	Address   device.Address   `json:"address"`
	Name      string           `json:"name"`
	State     device.StateKind `json:"state"`
	Connected bool             `json:"connected"`
	Reason    string           `json:"reason,omitempty"`
	LastSeen  time.Time        `json:"last_seen,omitzero"`
	Timestamp time.Time        `json:"timestamp"`
}

// CommandMessage is the JSON payload accepted on a device command topic.
type CommandMessage struct {
	Action string `json:"action"`
}

// Bridge mirrors Registry state to MQTT and turns command messages into
// Coordinator requests. It is another presenter: it never writes to the
// Registry itself.
type Bridge struct {
	registry *device.Registry
	broker   Broker
	commands Commander
	logger   Logger
	now      func() time.Time
}

// New creates a bridge.
func New(registry *device.Registry, broker Broker, commands Commander) *Bridge {
	return &Bridge{
		registry: registry,
		broker:   broker,
		commands: commands,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Run subscribes to device commands, publishes every known device, then
// publishes each Registry change until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.registry.Subscribe(device.DefaultSubscriptionBuffer)
	defer sub.Close()

	topics := b.broker.Topics()
	if err := b.broker.Subscribe(topics.AllDeviceCommands(), 1, b.commandHandler(ctx)); err != nil {
		return fmt.Errorf("subscribing to device commands: %w", err)
	}

	b.PublishAll()
	b.logger.Info("mqtt bridge started", "prefix", topics.Prefix())

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-sub.C:
			if !ok {
				return nil
			}
			b.publishChange(change)
		}
	}
}

// PublishAll publishes the retained state of every device. Call it after
// a reconnect so the broker's retained copies are current.
func (b *Bridge) PublishAll() {
	for _, d := range b.registry.List() {
		b.publishDevice(d)
	}
}

func (b *Bridge) publishChange(change device.Change) {
	if change.Kind == device.ChangeRemoved {
		// An empty retained message clears the broker's copy.
		topic := b.broker.Topics().DeviceState(change.Device.Address.String())
		if err := b.broker.PublishRetained(topic, nil); err != nil {
			b.logger.Warn("clearing device state", "address", change.Device.Address, "error", err)
		}
		return
	}
	b.publishDevice(change.Device)
}

func (b *Bridge) publishDevice(d device.Device) {
	payload, err := json.Marshal(StateMessage{
		Address:   d.Address,
		Name:      d.DisplayName(),
		State:     d.State.Kind,
		Connected: d.State.Kind == device.StateConnected,
		Reason:    d.State.Reason,
		LastSeen:  d.LastSeen,
		Timestamp: b.now().UTC(),
	})
	if err != nil {
		b.logger.Warn("encoding device state", "address", d.Address, "error", err)
		return
	}

	topic := b.broker.Topics().DeviceState(d.Address.String())
	if err := b.broker.PublishRetained(topic, payload); err != nil {
		b.logger.Warn("publishing device state", "address", d.Address, "error", err)
	}
}

func (b *Bridge) commandHandler(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		return b.HandleCommand(ctx, topic, payload)
	}
}

// HandleCommand executes one command message.
func (b *Bridge) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	raw, ok := b.broker.Topics().CommandAddress(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
	}
	address, err := device.ParseAddress(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch msg.Action {
	case ActionConnect:
		err = b.commands.RequestConnect(cmdCtx, address)
	case ActionDisconnect:
		err = b.commands.RequestDisconnect(cmdCtx, address)
	case ActionToggle:
		err = b.commands.Toggle(cmdCtx, address)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, msg.Action)
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", msg.Action, address, err)
	}

	b.logger.Debug("mqtt command accepted", "action", msg.Action, "address", address)
	return nil
}
