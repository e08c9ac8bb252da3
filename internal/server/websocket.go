package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/zot/modbind/internal/config"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // preview server, any origin
	},
}

// Message types exchanged over the preview socket.
const (
	MsgRender = "render" // server -> client: replace the page body
	MsgSet    = "set"    // client -> server: set a root value
	MsgError  = "error"  // server -> client
)

// Message is one preview socket message.
type Message struct {
	Type  string          `json:"type"`
	HTML  string          `json:"html,omitempty"`
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Error string          `json:"error,omitempty"`
}

// SetHandler applies a set message.
type SetHandler func(name string, value any) error

// sendBuffer is the number of outgoing messages queued per connection.
const sendBuffer = 64

// connection pairs a socket with its outgoing queue. Only writePump writes
// to the socket.
type connection struct {
	conn *websocket.Conn
	send chan *Message
}

// WebSocketEndpoint tracks preview connections and pushes renders to them.
type WebSocketEndpoint struct {
	config      *config.Config
	connections map[string]*connection // connectionID -> connection
	onSet       SetHandler
	onConnect   func(connectionID string)
	mu          sync.RWMutex
}

// NewWebSocketEndpoint creates a new WebSocket endpoint.
func NewWebSocketEndpoint(cfg *config.Config, onSet SetHandler) *WebSocketEndpoint {
	return &WebSocketEndpoint{
		config:      cfg,
		connections: make(map[string]*connection),
		onSet:       onSet,
	}
}

// Log logs a message via the config.
func (ws *WebSocketEndpoint) Log(level int, format string, args ...interface{}) {
	ws.config.Log(level, format, args...)
}

// SetOnConnect sets a function called with each new connection's ID.
func (ws *WebSocketEndpoint) SetOnConnect(fn func(connectionID string)) {
	ws.onConnect = fn
}

// HandleWebSocket handles incoming WebSocket connections.
func (ws *WebSocketEndpoint) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.Log(0, "WebSocket upgrade failed: %v", err)
		return
	}

	connectionID := uuid.NewString()
	c := &connection{conn: conn, send: make(chan *Message, sendBuffer)}
	go ws.writePump(connectionID, c)

	ws.mu.Lock()
	ws.connections[connectionID] = c
	ws.mu.Unlock()

	ws.Log(1, "WebSocket connected: conn=%s", connectionID)
	if ws.onConnect != nil {
		ws.onConnect(connectionID)
	}

	go ws.readPump(connectionID, c)
}

// readPump reads messages from a WebSocket connection.
func (ws *WebSocketEndpoint) readPump(connectionID string, c *connection) {
	defer ws.onDisconnect(connectionID)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				ws.Log(0, "WebSocket error: %v", err)
			}
			return
		}
		ws.processMessage(connectionID, data)
	}
}

func (ws *WebSocketEndpoint) processMessage(connectionID string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			ws.Log(0, "PANIC in processMessage: %v", r)
			ws.Send(connectionID, &Message{Type: MsgError, Error: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		ws.Log(0, "Failed to parse message: %v", err)
		ws.Send(connectionID, &Message{Type: MsgError, Error: err.Error()})
		return
	}
	ws.Log(2, "[IN] %s: from=%s", msg.Type, connectionID)

	switch msg.Type {
	case MsgSet:
		value, err := DecodeValue(msg.Value)
		if err == nil {
			err = ws.onSet(msg.Name, value)
		}
		if err != nil {
			ws.Send(connectionID, &Message{Type: MsgError, Error: err.Error()})
		}
	default:
		ws.Send(connectionID, &Message{Type: MsgError, Error: "unknown message type " + msg.Type})
	}
}

// DecodeValue decodes a JSON value. Numbers become float64.
func DecodeValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return v, nil
}

// onDisconnect handles connection close.
func (ws *WebSocketEndpoint) onDisconnect(connectionID string) {
	ws.mu.Lock()
	c, ok := ws.connections[connectionID]
	delete(ws.connections, connectionID)
	ws.mu.Unlock()
	if !ok {
		return
	}

	close(c.send)
	c.conn.Close()
	ws.Log(1, "WebSocket disconnected: conn=%s", connectionID)
}

// Send queues a message to one connection.
func (ws *WebSocketEndpoint) Send(connectionID string, msg *Message) {
	ws.mu.RLock()
	c, ok := ws.connections[connectionID]
	ws.mu.RUnlock()
	if !ok {
		return
	}

	ws.Log(2, "[OUT] %s: to=%s", msg.Type, connectionID)
	ws.write(connectionID, c, msg)
}

// Broadcast queues a message to every connection.
func (ws *WebSocketEndpoint) Broadcast(msg *Message) {
	ws.mu.RLock()
	conns := make(map[string]*connection, len(ws.connections))
	for id, c := range ws.connections {
		conns[id] = c
	}
	ws.mu.RUnlock()

	ws.Log(2, "[OUT] %s: to=%d connections", msg.Type, len(conns))
	for id, c := range conns {
		ws.write(id, c, msg)
	}
}

// write queues msg while holding the read lock, so it cannot race the close
// in onDisconnect. A full queue drops the message.
func (ws *WebSocketEndpoint) write(connectionID string, c *connection, msg *Message) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	if ws.connections[connectionID] != c {
		return
	}
	select {
	case c.send <- msg:
	default:
		ws.Log(0, "WebSocket queue full, dropping %s to %s", msg.Type, connectionID)
	}
}

// writePump sends queued messages until the queue is closed.
func (ws *WebSocketEndpoint) writePump(connectionID string, c *connection) {
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			ws.Log(1, "WebSocket write to %s failed: %v", connectionID, err)
		}
	}
}

// Connections returns the IDs of open connections.
func (ws *WebSocketEndpoint) Connections() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	ids := make([]string, 0, len(ws.connections))
	for id := range ws.connections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CloseAll closes every connection.
func (ws *WebSocketEndpoint) CloseAll() {
	for _, id := range ws.Connections() {
		ws.mu.RLock()
		c := ws.connections[id]
		ws.mu.RUnlock()
		if c != nil {
			c.conn.Close()
		}
	}
}
