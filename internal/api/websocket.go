package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skyeyinkun/homelink-core/internal/infrastructure/config"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/logging"
)

// Broadcast channels. Clients subscribe to the ones they care about.
const (
	ChannelEntityState = "entity_state"
	ChannelConnection  = "connection"
)

// WebSocket message types.
const (
	wsTypeSubscribe   = "subscribe"
	wsTypeUnsubscribe = "unsubscribe"
	wsTypePing        = "ping"
	wsTypePong        = "pong"
	wsTypeEvent       = "event"
	wsTypeResponse    = "response"
	wsTypeError       = "error"
)

// WSMessage is the envelope for all WebSocket traffic.
type WSMessage struct {
	Type      string          `json:"type"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// WSSubscribePayload carries the channel list for subscribe and
// unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// Hub tracks connected WebSocket clients and fans events out to them.
type Hub struct {
	cfg     config.WSConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	subscriptions map[string]bool
	mu            sync.RWMutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Local collaborators connect from other origins on the LAN.
	CheckOrigin: func(*http.Request) bool { return true },
}

func NewHub(cfg config.WSConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "ws_hub"),
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client connected", "clients", count)
}

// unregister removes a client. Only the remover closes the send
// channel, so a double unregister is safe.
func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		close(c.send)
		h.logger.Debug("client disconnected", "clients", count)
	}
}

// Broadcast sends an event to every client subscribed to the channel.
func (h *Hub) Broadcast(channel string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("broadcast marshal failed", "channel", channel, "error", err)
		return
	}
	msg, err := json.Marshal(WSMessage{
		Type:      wsTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.isSubscribed(channel) {
			c.trySend(msg)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		_ = c.conn.Close()
	}
}

// handleWebSocket upgrades the connection and starts the client pumps.
// Browsers cannot set headers on WebSocket dials, so the bearer token
// is accepted as a query parameter instead.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Token != "" && !tokenMatches(r.URL.Query().Get("token"), s.cfg.Token) {
		writeUnauthorized(w, "invalid or missing token")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: make(map[string]bool),
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) pongWait() time.Duration {
	return time.Duration(c.hub.cfg.PongTimeout) * time.Second
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	deadline := time.Duration(c.hub.cfg.PingInterval)*time.Second + c.pongWait()
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		// Any inbound traffic proves liveness.
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(raw)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(time.Duration(c.hub.cfg.PingInterval) * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.pongWait()))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.pongWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message")
		return
	}

	switch msg.Type {
	case wsTypeSubscribe:
		var payload WSSubscribePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid subscribe payload")
			return
		}
		c.mu.Lock()
		for _, ch := range payload.Channels {
			c.subscriptions[ch] = true
		}
		c.mu.Unlock()
		c.sendResponse("subscribed")

	case wsTypeUnsubscribe:
		var payload WSSubscribePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("invalid unsubscribe payload")
			return
		}
		c.mu.Lock()
		for _, ch := range payload.Channels {
			delete(c.subscriptions, ch)
		}
		c.mu.Unlock()
		c.sendResponse("unsubscribed")

	case wsTypePing:
		if out, err := json.Marshal(WSMessage{Type: wsTypePong, Timestamp: time.Now().UTC()}); err == nil {
			c.trySend(out)
		}

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions[channel]
}

// trySend queues a message without blocking. Slow clients lose
// messages rather than stalling the hub.
func (c *WSClient) trySend(msg []byte) {
	defer func() {
		// The send channel may close between the subscription check and
		// the send.
		_ = recover()
	}()

	select {
	case c.send <- msg:
	default:
	}
}

func (c *WSClient) sendResponse(status string) {
	raw, _ := json.Marshal(map[string]string{"status": status})
	if out, err := json.Marshal(WSMessage{
		Type:      wsTypeResponse,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}); err == nil {
		c.trySend(out)
	}
}

func (c *WSClient) sendError(message string) {
	if out, err := json.Marshal(WSMessage{
		Type:      wsTypeError,
		Timestamp: time.Now().UTC(),
		Error:     message,
	}); err == nil {
		c.trySend(out)
	}
}
