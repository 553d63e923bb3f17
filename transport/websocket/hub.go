package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound frames queued per connection before it is dropped.
	sendBufferSize = 256
)

// ErrorEvent is emitted for frames the hub cannot decode.
const ErrorEvent = "error"

// EventHandler receives decoded events. The hub calls it from a single
// goroutine, one event at a time, in arrival order.
type EventHandler interface {
	HandleEvent(connID, event string, data json.RawMessage)
	HandleDisconnect(connID string)
}

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client represents a WebSocket connection
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	room string
}

type inboundFrame struct {
	client  *Client
	message []byte
}

// Hub tracks live connections and their rooms. A connection is in at most
// one room at a time.
type Hub struct {
	// Live clients by connection id
	clients map[string]*Client

	// Room members by room name
	rooms map[string]map[*Client]bool

	mu sync.RWMutex

	// Frames read from clients
	inbound chan inboundFrame

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once

	upgrader    websocket.Upgrader
	checkOrigin func(r *http.Request) bool
	logger      *zap.Logger
}

// NewHub creates a hub. With no allowed origins every origin is accepted.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[*Client]bool),
		inbound:     make(chan inboundFrame),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		checkOrigin: originChecker(allowedOrigins),
		logger:      logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run starts the hub's event loop and blocks until Stop is called.
func (h *Hub) Run(handler EventHandler) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			if h.isRegistered(client) {
				handler.HandleDisconnect(client.id)
				h.unregisterClient(client)
			}

		case frame := <-h.inbound:
			h.dispatch(handler, frame)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

// Stop ends the event loop and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// CheckOrigin reports whether r passes the origin allow-list used for
// websocket upgrades.
func (h *Hub) CheckOrigin(r *http.Request) bool {
	return h.checkOrigin(r)
}

// Emit sends an event to a single connection. Unknown ids are ignored.
func (h *Hub) Emit(connID, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[connID]; ok {
		h.deliver(client, data)
	}
}

// EmitToRoom sends an event to every connection in room.
func (h *Hub) EmitToRoom(room, event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[room] {
		h.deliver(client, data)
	}
}

// Join moves the connection into room.
func (h *Hub) Join(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	h.leaveRoom(client)

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	client.room = room

	h.logger.Debug("connection joined room",
		zap.String("conn_id", connID),
		zap.String("room", room),
		zap.Int("members", len(h.rooms[room])),
	)
}

// Leave removes the connection from its room, if it has one.
func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, ok := h.clients[connID]; ok {
		h.leaveRoom(client)
	}
}

// ConnectionCount returns the number of live connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of non-empty rooms
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomSize returns the number of connections in room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client

	h.logger.Info("client connected",
		zap.String("conn_id", client.id),
		zap.Int("connections", len(h.clients)),
	)
}

// unregisterClient removes a client and closes its send queue
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.detach(client) {
		h.logger.Info("client disconnected",
			zap.String("conn_id", client.id),
			zap.Int("connections", len(h.clients)),
		)
	}
}

func (h *Hub) isRegistered(client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[client.id] == client
}

func (h *Hub) dispatch(handler EventHandler, frame inboundFrame) {
	if !h.isRegistered(frame.client) {
		return
	}

	var env Envelope
	if err := json.Unmarshal(frame.message, &env); err != nil || env.Event == "" {
		h.logger.Debug("malformed frame",
			zap.String("conn_id", frame.client.id),
			zap.Error(err),
		)
		h.Emit(frame.client.id, ErrorEvent, map[string]string{"message": "malformed event"})
		return
	}

	handler.HandleEvent(frame.client.id, env.Event, env.Data)
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(outbound{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("failed to marshal event",
			zap.String("event", event),
			zap.Error(err),
		)
		return nil, false
	}
	return data, true
}

// deliver queues data for client without blocking. A client whose queue
// is full is dropped. h.mu must be held.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.logger.Warn("send queue full, dropping connection",
			zap.String("conn_id", client.id),
			zap.String("room", client.room),
		)
		h.detach(client)
	}
}

// detach removes client from the hub and closes its queue. h.mu must be
// held. Reports whether the client was still attached.
func (h *Hub) detach(client *Client) bool {
	if h.clients[client.id] != client {
		return false
	}
	h.leaveRoom(client)
	delete(h.clients, client.id)
	close(client.send)
	return true
}

// leaveRoom drops empty rooms. h.mu must be held.
func (h *Hub) leaveRoom(client *Client) {
	if client.room == "" {
		return
	}
	if members, ok := h.rooms[client.room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		h.detach(client)
	}
}

// readPump pumps frames from the WebSocket connection to the hub
func (c *Client) readPump() {
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
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error",
					zap.String("conn_id", c.id),
					zap.Error(err),
				)
			}
			return
		}

		select {
		case c.hub.inbound <- inboundFrame{client: c, message: message}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
// Each event goes out as its own text frame.
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
				// The hub closed the channel
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

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from one of the allowed origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}

	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		set[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
