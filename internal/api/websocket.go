package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bluetray/bluetray/internal/device"
	"github.com/bluetray/bluetray/internal/infrastructure/config"
	"github.com/bluetray/bluetray/internal/infrastructure/logging"
)

// Stream frame types.
const (
	// Server to client.
	FrameSnapshot      = "snapshot"
	FrameDeviceChanged = "device.changed"
	FrameWatching      = "watching"
	FramePong          = "pong"
	FrameError         = "error"

	// Client to server.
	FrameWatch       = "watch"
	FrameGetSnapshot = "get_snapshot"
	FramePing        = "ping"
)

// streamQueueLength is the per-client outbound frame buffer.
const streamQueueLength = 64

// Frame is one message on the device stream, in either direction. Only
// the fields relevant to Type are set.
type Frame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// Devices carries a full Registry snapshot (snapshot).
	Devices []device.Device `json:"devices,omitempty"`
	// Event carries one Registry change (device.changed).
	Event *ChangeEvent `json:"event,omitempty"`
	// Addresses limits delivery to these devices (watch, watching).
	// Empty means every device.
	Addresses []device.Address `json:"addresses,omitempty"`
	// Error is set on error frames.
	Error string `json:"error,omitempty"`

	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Hub fans Registry changes out to connected stream clients.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish sends change to every client watching its device. Slow clients
// miss frames rather than stall the Registry subscription.
func (h *Hub) Publish(change device.Change) {
	ev := newChangeEvent(change)
	data, err := json.Marshal(Frame{
		Type:      FrameDeviceChanged,
		Event:     &ev,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("encoding device change", "address", change.Device.Address, "error", err)
		return
	}

	h.mu.Lock()
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if c.watches(change.Device.Address) && !c.enqueue(data) {
			h.logger.Debug("stream client lagging, change dropped", "address", change.Device.Address)
		}
	}
}

func (h *Hub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Debug("stream client connected", "clients", len(h.clients))
	return true
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("stream client disconnected", "clients", n)
}

// streamClient is one websocket connection. The write loop owns conn
// writes; queue is closed exactly once by shutdown.
type streamClient struct {
	hub      *Hub
	conn     *websocket.Conn
	snapshot func() []device.Device

	mu     sync.Mutex
	queue  chan []byte
	done   bool
	filter map[device.Address]struct{} // nil = all devices
}

func (c *streamClient) watches(address device.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.filter == nil {
		return true
	}
	_, ok := c.filter[address]
	return ok
}

func (c *streamClient) setFilter(addresses []device.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(addresses) == 0 {
		c.filter = nil
		return
	}
	c.filter = make(map[device.Address]struct{}, len(addresses))
	for _, a := range addresses {
		c.filter[a] = struct{}{}
	}
}

// enqueue reports false when the frame was dropped.
func (c *streamClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	select {
	case c.queue <- data:
		return true
	default:
		return false
	}
}

func (c *streamClient) reply(f Frame) {
	f.Timestamp = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *streamClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	close(c.queue)
}

// handleWebSocket upgrades to the device stream. The first frame is a
// snapshot of every device; device.changed frames follow. The API listens
// on loopback only, so the Origin header is the only check.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &streamClient{
		hub:      s.hub,
		conn:     conn,
		snapshot: s.registry.List,
		queue:    make(chan []byte, streamQueueLength),
	}

	// Register before the snapshot so no change between the two is lost.
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	c.reply(Frame{Type: FrameSnapshot, Devices: c.snapshot()})

	go c.writeLoop(s.wsCfg)
	go c.readLoop(s.wsCfg)
}

func (c *streamClient) readLoop(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	deadline := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // read error surfaces below
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("device stream read error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // read error surfaces above

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.reply(Frame{Type: FrameError, Error: "invalid frame: " + err.Error()})
			continue
		}
		c.handle(f)
	}
}

func (c *streamClient) handle(f Frame) {
	switch f.Type {
	case FrameWatch:
		addresses := make([]device.Address, 0, len(f.Addresses))
		for _, raw := range f.Addresses {
			a, err := device.ParseAddress(string(raw))
			if err != nil {
				c.reply(Frame{Type: FrameError, ID: f.ID, Error: err.Error()})
				return
			}
			addresses = append(addresses, a)
		}
		c.setFilter(addresses)
		c.reply(Frame{Type: FrameWatching, ID: f.ID, Addresses: addresses})
	case FrameGetSnapshot:
		c.reply(Frame{Type: FrameSnapshot, ID: f.ID, Devices: c.snapshot()})
	case FramePing:
		c.reply(Frame{Type: FramePong, ID: f.ID})
	default:
		c.reply(Frame{Type: FrameError, ID: f.ID, Error: "unknown frame type: " + f.Type})
	}
}

func (c *streamClient) writeLoop(cfg config.WebSocketConfig) {
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.queue:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error surfaces below
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error surfaces below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
