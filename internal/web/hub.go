package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// HubConfig sizes the hub queues. Zero values take defaults.
type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int
	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// Hub fans serialized frames out to connected /events clients. A client that
// cannot keep up is disconnected rather than slowing the others.
type Hub struct {
	logger *slog.Logger

	broadcast  chan []byte
	unregister chan *client
	done       chan struct{} // closed when Run returns

	mu      sync.Mutex
	clients map[*client]struct{}
	stopped bool

	sendBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		unregister: make(chan *client, 64),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is cancelled, then disconnects all clients.
// Clients that arrive after that are refused.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.unregister:
			h.remove(c, "unregister")

		case msg := <-h.broadcast:
			var slow []*client
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.remove(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// BroadcastBytes enqueues a serialized frame. It never blocks; if the queue
// is full the frame is dropped.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("events broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// join adds c to the hub. It reports false once the hub has stopped; the
// caller then owns the connection.
func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("events client connected", "remote_addr", c.remoteAddr, "clients", n)
	return true
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for c := range h.clients {
		c.conn.Close()
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.conn.Close()
	c.closeSend()
	h.logger.Info("events client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
}

type client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	closeOnce  sync.Once
	remoteAddr string
	logger     *slog.Logger
}

func newClient(h *Hub, conn *websocket.Conn, remoteAddr string) *client {
	return &client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, h.sendBuf),
		remoteAddr: remoteAddr,
		logger:     h.logger,
	}
}

func (c *client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes queued frames and keepalive pings. It exits on write
// error or when send is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump discards inbound frames so control frames are processed, and
// unregisters the client when the connection drops.
func (c *client) readPump() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			select {
			case c.hub.unregister <- c:
			case <-c.hub.done:
			}
			return
		}
	}
}

func (c *client) logExit(op string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("events client closed", "remote_addr", c.remoteAddr, "op", op, "code", code, "reason", text)
		return
	}
	c.logger.Debug("events client error", "remote_addr", c.remoteAddr, "op", op, "error", err)
}
