package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/reflink/internal/logging"
	"github.com/FocuswithJustin/reflink/internal/site"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
)

// Message is everything the server sends over the live preview socket.
// Type is "rewrite" for a reply, "document" for a file processed by a
// watcher, or "error".
type Message struct {
	Type      string           `json:"type"`
	ID        string           `json:"id,omitempty"`
	Rewrite   *RewriteResponse `json:"rewrite,omitempty"`
	Document  *site.FileResult `json:"document,omitempty"`
	Error     *APIError        `json:"error,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// previewRequest is one rewrite request read from the socket. ID is echoed
// back so a client can match replies.
type previewRequest struct {
	ID string `json:"id"`
	RewriteRequest
}

// Client is one live preview connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ip   string
}

type directMessage struct {
	client *Client
	data   []byte
}

// Hub tracks the live preview clients. All writes to a client's send
// channel happen on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	onCount    func(int)
}

// NewHub creates a hub. Nothing is delivered until Run is called.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan directMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run delivers messages until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.counted(n)
			logging.WebSocketEvent("client_connected", n, "remote", c.ip)

		case c := <-h.unregister:
			h.drop(c)

		case m := <-h.direct:
			h.mu.RLock()
			_, ok := h.clients[m.client]
			h.mu.RUnlock()
			if ok {
				h.deliver(m.client, m.data)
			}

		case data := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()
			for _, c := range clients {
				h.deliver(c, data)
			}
		}
	}
}

// deliver queues data for c, disconnecting a client that cannot keep up.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.drop(c)
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.counted(n)
		logging.WebSocketEvent("client_disconnected", n, "remote", c.ip)
	}
}

func (h *Hub) counted(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// Broadcast sends msg to every connected client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		logging.Error("failed to marshal websocket message", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message", "type", msg.Type)
	}
}

func encodeMessage(msg Message) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(msg)
}

// reply queues msg for c alone.
func (c *Client) reply(msg Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		logging.Error("failed to marshal websocket message", "error", err)
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, data: data}:
	case <-c.hub.done:
	}
}

// readPump turns every text message into a rewrite and queues the reply.
func (s *Server) readPump(c *Client) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn("websocket unexpected close", "remote", c.ip, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			c.reply(errorMessage("", "INVALID_REQUEST", "only text messages are accepted"))
			continue
		}
		if s.limiter != nil && !s.limiter.Allow(c.ip) {
			c.reply(errorMessage("", "RATE_LIMIT_EXCEEDED", "Rate limit exceeded"))
			continue
		}

		var req previewRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(errorMessage("", "INVALID_REQUEST", "message must be a JSON rewrite request"))
			continue
		}
		resp, err := s.rewrite(req.RewriteRequest)
		if err != nil {
			code, _, msg := classify(err)
			c.reply(errorMessage(req.ID, code, msg))
			continue
		}
		c.reply(Message{Type: "rewrite", ID: req.ID, Rewrite: &resp})
	}
}

// writePump writes queued messages and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorMessage(id, code, message string) Message {
	return Message{Type: "error", ID: id, Error: &APIError{Code: code, Message: message}}
}

// checkOrigin accepts requests without an Origin header and origins listed
// in AllowedOrigins. An empty list accepts all.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, origin)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 64), ip: clientIP(r)}
	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go s.readPump(c)
}
