package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bluetray/bluetray/internal/infrastructure/config"
)

// Client is Bluetray's broker session. It keeps a retained online/offline
// status on the system status topic (with a Last Will for crashes) and
// re-subscribes every route after paho reconnects.
//
// All methods are safe for concurrent use.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu           sync.RWMutex
	online       bool
	routes       map[string]route
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the optional logger for handler errors and panics.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler handles one received message. Handlers run on paho's
// goroutines and should return quickly. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// route is a subscription remembered for replay after a reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		routes: make(map[string]route),
	}
}

// Connect dials the broker in cfg and waits for the first session.
//
// Returns ErrConnectionFailed if the broker is not reachable within the
// connect timeout. paho keeps retrying in the background afterwards, so a
// broker restart does not need a new Client.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg)
	opts.SetBinaryWill(c.topics.SystemStatus(), statusPayload(cfg.Broker.ClientID, "offline", "unexpected_disconnect"), 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionDown(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// sessionUp may still be queued on a paho goroutine.
	c.mu.Lock()
	c.online = true
	c.mu.Unlock()
	return c, nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) sessionUp() {
	c.mu.Lock()
	c.online = true
	replay := make(map[string]route, len(c.routes))
	for filter, r := range c.routes {
		replay[filter] = r
	}
	hook := c.onConnect
	c.mu.Unlock()

	// Clean sessions forget subscriptions on the broker side.
	for filter, r := range replay {
		c.paho.Subscribe(filter, r.qos, c.dispatch(r.handler))
	}
	c.paho.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true,
		statusPayload(c.cfg.Broker.ClientID, "online", ""))

	if hook != nil {
		hook()
	}
}

func (c *Client) sessionDown(err error) {
	c.mu.Lock()
	c.online = false
	hook := c.onDisconnect
	c.mu.Unlock()

	if hook != nil {
		hook(err)
	}
}

// Close marks Bluetray offline with a retained graceful status, then
// disconnects. It is a no-op on a client that never connected.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		c.paho.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true,
			statusPayload(c.cfg.Broker.ClientID, "offline", "graceful_shutdown")).
			WaitTimeout(defaultPublishTimeout)
	}
	c.paho.Disconnect(defaultDisconnectQuiesce)

	c.mu.Lock()
	c.online = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether a broker session is up.
func (c *Client) IsConnected() bool {
	if c == nil || c.paho == nil {
		return false
	}
	c.mu.RLock()
	online := c.online
	c.mu.RUnlock()
	return online && c.paho.IsConnected()
}

// SetOnConnect sets a hook run after every session start, once routes are
// restored.
func (c *Client) SetOnConnect(hook func()) {
	c.mu.Lock()
	c.onConnect = hook
	c.mu.Unlock()
}

// SetOnDisconnect sets a hook run when the session drops.
func (c *Client) SetOnDisconnect(hook func(err error)) {
	c.mu.Lock()
	c.onDisconnect = hook
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// dispatch adapts handler to paho. A panicking or failing handler is
// logged; it never kills paho's router goroutine.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if v := recover(); v != nil {
				if l := c.log(); l != nil {
					l.Error("mqtt handler panicked", "topic", topic, "panic", v)
				}
			}
		}()

		err := handler(topic, msg.Payload())
		if err == nil {
			return
		}
		if l := c.log(); l != nil {
			l.Warn("mqtt message rejected", "topic", topic, "error", err)
		}
	}
}
