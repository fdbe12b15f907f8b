package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bitmuster/resultblend/pkg/metrics"
	"github.com/bitmuster/resultblend/pkg/staging"
	"github.com/bitmuster/resultblend/pkg/store"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// createUpgrader creates a WebSocket upgrader with origin validation.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	originSet := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[origin] = true
	}

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Without configured origins only same-origin (no header) clients connect.
			if len(allowedOrigins) == 0 {
				return origin == ""
			}

			return allowAll || originSet[origin]
		},
	}
}

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Server -> Client messages.
	MessageTypeDocumentStaged MessageType = "document_staged"
	MessageTypeStoreDrained   MessageType = "store_drained"
	MessageTypeBlendCompleted MessageType = "blend_completed"
	MessageTypeBlendFailed    MessageType = "blend_failed"
	MessageTypeSystemStatus   MessageType = "system_status"

	// Client -> Server messages.
	MessageTypePing MessageType = "ping"
)

// Message represents a WebSocket message.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// StagingPayload describes a staging store change.
type StagingPayload struct {
	Documents []staging.Document `json:"documents"`
	Remaining int                `json:"remaining"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	// Registered clients.
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(log logrus.FieldLogger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:        log.WithField("component", "websocket"),
		metrics:    m,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("Starting WebSocket hub")

	for {
		select {
		case <-ctx.Done():
			h.log.Info("Stopping WebSocket hub")

			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			h.updateClientGauge()
			h.log.WithField("client", client.id).Debug("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()

			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

			h.mu.Unlock()

			h.updateClientGauge()
			h.log.WithField("client", client.id).Debug("Client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()

			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					// Slow client; drop it.
					close(client.send)
					delete(h.clients, client)
				}
			}

			h.mu.Unlock()

			h.updateClientGauge()
		}
	}
}

func (h *Hub) updateClientGauge() {
	if h.metrics != nil {
		h.metrics.SetWebSocketClients(h.ClientCount())
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg *Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("Broadcast channel full, dropping message")
	}
}

// BroadcastStagingChange broadcasts an upload or a drain.
func (h *Hub) BroadcastStagingChange(kind staging.ChangeKind, docs []staging.Document, remaining int) {
	msgType := MessageTypeDocumentStaged
	if kind == staging.ChangeDrained {
		msgType = MessageTypeStoreDrained
	}

	h.Broadcast(&Message{
		Type:    msgType,
		Payload: StagingPayload{Documents: docs, Remaining: remaining},
	})
}

// BroadcastBlend broadcasts the outcome of a blend cycle.
func (h *Hub) BroadcastBlend(record *store.Blend) {
	msgType := MessageTypeBlendCompleted
	if record.Status != store.BlendStatusSucceeded {
		msgType = MessageTypeBlendFailed
	}

	h.Broadcast(&Message{Type: msgType, Payload: record})
}

// sendTo queues a message for one client if it is still registered.
func (h *Hub) sendTo(client *Client, msg *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.clients[client] {
		return
	}

	select {
	case client.send <- msg:
	default:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Client represents a WebSocket client connection.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan *Message
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan *Message, 256),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithError(err).Warn("WebSocket read error")
			}

			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.hub.log.WithError(err).Warn("Failed to parse WebSocket message")

			continue
		}

		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if !ok {
				// The hub closed the channel.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages from the client.
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypePing:
		reply := &Message{Type: MessageTypeSystemStatus, Payload: map[string]any{
			"status":    "ok",
			"clients":   c.hub.ClientCount(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}}

		c.hub.sendTo(c, reply)

	default:
		c.hub.log.WithField("type", msg.Type).Warn("Unknown message type")
	}
}

// ServeWs upgrades an authenticated request to a websocket event stream.
func ServeWs(hub *Hub, allowedOrigins []string, w http.ResponseWriter, r *http.Request) {
	upgrader := createUpgrader(allowedOrigins)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.WithError(err).Error("Failed to upgrade WebSocket")

		return
	}

	clientID := r.Header.Get("X-Request-ID")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	client := NewClient(hub, conn, clientID)
	hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}
