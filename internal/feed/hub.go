// Package feed broadcasts market events to WebSocket subscribers: settled
// trades, reference price moves and completed bridge swaps. Delivery is
// best-effort; a slow subscriber is dropped rather than allowed to stall
// the rest.
package feed

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Event type constants
const (
	EventTrade = "trade"
	EventPrice = "price"
	EventSwap  = "swap"
)

// Event is one broadcast message.
type Event struct {
	Type        string      `json:"type"`
	TimestampMs int64       `json:"ts"`
	Data        interface{} `json:"data"`
}

// HubConfig configures Hub behavior.
type HubConfig struct {
	// SendBuffer is the per-client outbound queue depth. A client whose
	// queue is full gets disconnected.
	SendBuffer int
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// WriteTimeout is the timeout for writing one frame.
	WriteTimeout time.Duration
	// ReadTimeout is the pong deadline.
	ReadTimeout time.Duration
}

// DefaultHubConfig returns default Hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:   64,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	config   HubConfig
	logger   *log.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*client]struct{}

	closed atomic.Bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a Hub. A nil config uses defaults.
func NewHub(config *HubConfig, logger *log.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	return &Hub{
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Market data is public; no origin gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the subscriber until it
// disconnects or falls behind.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, h.config.SendBuffer),
	}

	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()
	h.logger.Printf("feed client connected (%d active)", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Publish broadcasts an event to every connected client. Never blocks:
// clients that cannot keep up are dropped.
func (h *Hub) Publish(eventType string, data interface{}) {
	if h.closed.Load() {
		return
	}

	payload, err := json.Marshal(Event{
		Type:        eventType,
		TimestampMs: time.Now().UnixMilli(),
		Data:        data,
	})
	if err != nil {
		h.logger.Printf("marshal %s event: %v", eventType, err)
		return
	}

	h.clientsMu.RLock()
	var stalled []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range stalled {
		h.logger.Printf("dropping stalled feed client")
		h.remove(c)
	}
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops accepting new ones.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	h.clientsMu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.clientsMu.Unlock()

	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
}

// readLoop discards inbound frames (the feed is one-way) and detects
// disconnects. Pongs refresh the read deadline.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

func (h *Hub) remove(c *client) {
	h.clientsMu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.clientsMu.Unlock()

	if present {
		c.conn.Close()
	}
}
