// Package transport owns the raw WebSocket connection and its reconnection
// lifecycle. Callers hand it opaque frames; whether those frames are
// plaintext JSON or ciphertext is the secure channel's business.
package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Status describes the connection lifecycle state.
type Status int

const (
	// StatusDisconnected means no connection exists and none is being dialed.
	StatusDisconnected Status = iota
	// StatusConnecting means a dial attempt is in flight.
	StatusConnecting
	// StatusConnected means the socket is open and writable.
	StatusConnected
)

// Default backoff parameters.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 1.5
)

// Config holds the transport client settings.
type Config struct {
	// URL is the ws:// or wss:// endpoint. Required.
	URL string

	// InitialDelay, MaxDelay and Multiplier tune the reconnect backoff.
	// Zero values take the package defaults.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Dialer overrides the default gorilla dialer (used in tests to point
	// at httptest servers with custom timeouts).
	Dialer *websocket.Dialer
}

// Callbacks are invoked from the client's internal goroutines. They must not
// block for long; none of them is ever invoked with the client lock held.
type Callbacks struct {
	// OnMessage receives every raw inbound frame.
	OnMessage func(data []byte)
	// OnConnect fires after each successful open, once the pending queue
	// has been flushed.
	OnConnect func()
	// OnDisconnect fires on any transition out of Connected, clean or not.
	OnDisconnect func()
	// OnError receives transport failures. Errors are reported, never
	// thrown: a failed dial or broken read shows up here and nowhere else.
	OnError func(err error)
}

// Client maintains exactly one logical connection to a single endpoint,
// hiding connect/reconnect cycling from callers. Frames sent while
// disconnected are queued FIFO and flushed exactly once on the next open.
type Client struct {
	cfg    Config
	cb     Callbacks
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	status  Status
	backoff Backoff
	pending [][]byte
	retry   *time.Timer
	closed  bool // set by Disconnect; suppresses auto-reconnect
	gen     uint64
}

// NewClient creates a transport client. It does not dial; call Connect.
func NewClient(cfg Config, cb Callbacks, logger *slog.Logger) *Client {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultMultiplier
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		cb:     cb,
		logger: logger,
		backoff: Backoff{
			Initial:    cfg.InitialDelay,
			Max:        cfg.MaxDelay,
			Multiplier: cfg.Multiplier,
		},
	}
}

// Connect starts a dial attempt unless one is already in flight or the
// socket is open. It returns immediately; the outcome arrives via OnConnect
// or OnError.
func (c *Client) Connect() {
	c.mu.Lock()
	c.closed = false
	c.connectLocked()
	c.mu.Unlock()
}

func (c *Client) connectLocked() {
	if c.status != StatusDisconnected {
		return
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.status = StatusConnecting
	c.gen++
	go c.dial(c.gen)
}

func (c *Client) dial(gen uint64) {
	conn, resp, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.status = StatusDisconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.logger.Warn("connect failed", "url", c.cfg.URL, "err", err)
		c.report(err)
		return
	}

	c.conn = conn
	c.status = StatusConnected
	c.backoff.Reset()

	// Flush the pending queue FIFO before anyone else can write.
	queued := c.pending
	c.pending = nil
	var flushErr error
	flushed := 0
	for i, frame := range queued {
		if flushErr = conn.WriteMessage(websocket.BinaryMessage, frame); flushErr != nil {
			// Keep the unsent tail; the read loop will notice the broken
			// socket and the frames go out after the next reconnect.
			c.pending = append(c.pending, queued[i:]...)
			break
		}
		flushed = i + 1
	}
	c.mu.Unlock()

	c.logger.Debug("connected", "url", c.cfg.URL, "flushed", flushed)
	if c.cb.OnConnect != nil {
		c.cb.OnConnect()
	}
	if flushErr != nil {
		c.report(flushErr)
	}

	go c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(data)
		}
	}
}

// handleClose processes an unexpected connection loss. A clean Disconnect
// bumps the generation first, so the dying read loop falls through here
// without scheduling a reconnect.
func (c *Client) handleClose(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.status = StatusDisconnected
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.logger.Warn("connection lost", "url", c.cfg.URL, "err", cause)
	if c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect()
	}
	c.report(cause)
}

// scheduleReconnectLocked arms the backoff timer. Caller holds c.mu.
func (c *Client) scheduleReconnectLocked() {
	if c.closed || c.retry != nil {
		return
	}
	delay := c.backoff.Next()
	gen := c.gen
	c.retry = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.retry = nil
		if gen == c.gen && !c.closed {
			c.connectLocked()
		}
		c.mu.Unlock()
	})
	c.logger.Debug("reconnect scheduled", "delay", delay)
}

// Send transmits a frame if connected, otherwise queues it and kicks off a
// connect attempt if none is pending. Sending after a clean Disconnect
// restarts the connection lifecycle, same as an explicit Connect. It never
// blocks on the network beyond the synchronous socket write.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	if c.status != StatusConnected {
		c.pending = append(c.pending, data)
		if c.status == StatusDisconnected && c.retry == nil {
			c.closed = false
			c.connectLocked()
		}
		c.mu.Unlock()
		return
	}

	conn := c.conn
	err := conn.WriteMessage(websocket.BinaryMessage, data)
	if err != nil {
		// Requeue so the frame survives the reconnect.
		c.pending = append(c.pending, data)
	}
	gen := c.gen
	c.mu.Unlock()

	if err != nil {
		c.handleClose(gen, err)
	}
}

// Disconnect closes the socket explicitly and cancels any pending reconnect.
// No auto-reconnect follows; a later Connect or Send starts a fresh cycle.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.gen++ // orphan any in-flight dial or read loop
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	c.conn = nil
	wasConnected := c.status == StatusConnected
	c.status = StatusDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	if wasConnected && c.cb.OnDisconnect != nil {
		c.cb.OnDisconnect()
	}
}

// IsConnected reports whether the socket is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected
}

// Status returns the current lifecycle state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PendingCount reports how many frames sit in the offline queue.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RetryDelay reports the delay the next reconnect attempt would use.
func (c *Client) RetryDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.Current()
}

func (c *Client) report(err error) {
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}
