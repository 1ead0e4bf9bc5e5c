package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/doctrack/internal/observability"
	"github.com/harun/doctrack/pkg/progress"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const (
	// EventProgress carries one record after a state change
	EventProgress = "progress"
	// EventSnapshot carries every tracked record, sent once on connect
	EventSnapshot = "snapshot"

	defaultBufferSize   = 64
	defaultWriteTimeout = 5 * time.Second
)

// EventMessage is the envelope of every message sent to clients
type EventMessage struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Config holds hub configuration
type Config struct {
	Logger       zerolog.Logger
	BufferSize   int
	WriteTimeout time.Duration
}

type client struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
}

// Hub fans registry updates out to websocket clients.
//
// Broadcast never blocks: each client has a buffered queue drained by its
// own writer goroutine, and messages for a full queue are dropped.
type Hub struct {
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	bufferSize   int
	writeTimeout time.Duration
	seq          uint64

	mu       sync.RWMutex
	clients  map[string]*client
	registry *progress.Registry
}

// NewHub creates a hub with no clients
func NewHub(cfg Config) *Hub {
	observability.EnsureRegistered()

	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	return &Hub{
		logger:       cfg.Logger.With().Str("component", "stream").Logger(),
		bufferSize:   cfg.BufferSize,
		writeTimeout: cfg.WriteTimeout,
		clients:      make(map[string]*client),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Attach subscribes the hub to reg. New clients receive a snapshot of reg
// before any progress event.
func (h *Hub) Attach(reg *progress.Registry) progress.CallbackID {
	h.mu.Lock()
	h.registry = reg
	h.mu.Unlock()

	return reg.AddCallback(func(_ string, rec progress.Record) {
		h.Broadcast(EventProgress, rec)
	})
}

// Broadcast sends an event to every connected client
func (h *Hub) Broadcast(event string, data any) {
	payload, err := h.encode(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		h.enqueue(c, payload)
	}
}

// enqueue must be called with h.mu held
func (h *Hub) enqueue(c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		observability.RecordStreamDrop()
		h.logger.Warn().Str("clientId", c.id).Msg("Client queue full, dropping message")
	}
}

func (h *Hub) encode(event string, data any) ([]byte, error) {
	return json.Marshal(EventMessage{
		Type:      "event",
		Event:     event,
		Seq:       int64(atomic.AddUint64(&h.seq, 1)),
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, err := gonanoid.New()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to generate client id")
		conn.Close()
		return
	}

	c := &client{
		id:          clientID,
		conn:        conn,
		send:        make(chan []byte, h.bufferSize),
		connectedAt: time.Now(),
	}

	// Snapshot and registration happen under the registry lock so no update
	// falls between the snapshot and the first broadcast.
	h.mu.RLock()
	reg := h.registry
	h.mu.RUnlock()

	var count int
	if reg != nil {
		reg.View(func(records map[string]progress.Record) {
			if payload, err := h.encode(EventSnapshot, records); err == nil {
				c.send <- payload
			}
			count = h.add(c)
		})
	} else {
		count = h.add(c)
	}

	h.logger.Info().
		Str("clientId", clientID).
		Str("ip", r.RemoteAddr).
		Int("clients", count).
		Msg("Client connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client input and returns when the connection closes
func (h *Hub) readPump(c *client) {
	defer h.remove(c.id)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("clientId", c.id).Msg("WebSocket error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()

	for payload := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Warn().Err(err).Str("clientId", c.id).Msg("Failed to write to client")
			return
		}
	}

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.writeTimeout),
	)
}

func (h *Hub) add(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.id] = c
	observability.SetStreamClients(len(h.clients))
	return len(h.clients)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.send)
	observability.SetStreamClients(len(h.clients))

	h.logger.Info().
		Str("clientId", id).
		Dur("connected", time.Since(c.connectedAt)).
		Msg("Client disconnected")
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		h.remove(id)
	}
}
