package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 32

// hubClient is one attached WebSocket connection. Outbound frames go through
// a buffered channel so a slow client never blocks the broadcast loop:
// when the buffer is full the frame is dropped and counted.
type hubClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	clients map[string]*hubClient
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metrics *Metrics) *Hub {
	return &Hub{
		logger:  logger,
		metrics: metrics,
		clients: make(map[string]*hubClient),
	}
}

// register attaches a connection and starts its write pump.
func (h *Hub) register(id string, conn *websocket.Conn) *hubClient {
	c := &hubClient{id: id, conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	h.clients[id] = c
	count := len(h.clients)
	h.mu.Unlock()

	h.metrics.ActiveConnections.Set(float64(count))
	h.logger.Info("client connected", "client_id", id, "active", count)

	go h.writePump(c)
	return c
}

// unregister detaches a connection.
func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.close()
	h.metrics.ActiveConnections.Set(float64(count))
	h.logger.Info("client disconnected", "client_id", id, "active", count)
}

func (h *Hub) writePump(c *hubClient) {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			h.logger.Warn("write failed", "client_id", c.id, "err", err)
			return
		}
	}
}

// Broadcast sends a frame to every client except the named one (pass "" to
// reach everyone). Never blocks: slow clients lose frames instead.
func (h *Hub) Broadcast(frame []byte, exceptID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if id == exceptID {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.metrics.DroppedFrames.Inc()
			h.logger.Warn("dropping frame for slow client", "client_id", id)
		}
	}
}

// SendTo sends a frame to one client. Returns false if the client is gone
// or its buffer is full. The read lock is held across the channel send:
// unregister closes the send channel only after it wins the write lock, so
// a concurrent disconnect can never close the channel mid-send.
func (h *Hub) SendTo(id string, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		h.metrics.DroppedFrames.Inc()
		return false
	}
}

// Count reports the number of attached clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
