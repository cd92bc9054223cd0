// Package push streams battle state to websocket clients and relays their
// playback acknowledgements back to the orchestrator.
package push

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-battle/core/events"
	"github.com/koscakluka/ema-battle/core/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 16
)

// Acker receives the commands clients may send.
type Acker interface {
	SignalPlaybackComplete()
	Reset()
}

type MessageType string

const (
	MessageTypeState            MessageType = "state"
	MessageTypePlaybackComplete MessageType = "playback_complete"
	MessageTypeReset            MessageType = "reset"
)

// Message is the envelope of everything sent over the socket.
type Message struct {
	Type  MessageType    `json:"type"`
	Event events.Kind    `json:"event,omitempty"`
	State *session.State `json:"state,omitempty"`
}

// Hub is an http.Handler upgrading requests to websockets. Subscribe Handle
// to the orchestrator to broadcast every state change.
type Hub struct {
	acker    Acker
	current  func() session.State
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type HubOption func(*Hub)

// WithCurrentState sends every new client the current snapshot right after
// it connects.
func WithCurrentState(current func() session.State) HubOption {
	return func(h *Hub) { h.current = current }
}

// WithCheckOrigin overrides the origin check of the websocket upgrade.
func WithCheckOrigin(check func(r *http.Request) bool) HubOption {
	return func(h *Hub) { h.upgrader.CheckOrigin = check }
}

func NewHub(acker Acker, opts ...HubOption) *Hub {
	hub := &Hub{
		acker: acker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: map[*client]struct{}{},
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	logger.Info("push client connected", "remote", r.RemoteAddr)

	if h.current != nil {
		state := h.current()
		if payload, err := json.Marshal(Message{Type: MessageTypeState, State: &state}); err == nil {
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				select {
				case c.send <- payload:
				default:
				}
			}
			h.mu.Unlock()
		}
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		c.close()
	}
}

// Handle broadcasts the snapshot carried by event to every client. Clients
// that cannot keep up are dropped.
func (h *Hub) Handle(event events.Event) error {
	state := event.Snapshot()
	payload, err := json.Marshal(Message{Type: MessageTypeState, Event: event.Kind(), State: &state})
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		logger.Warn("dropping push client that fell behind", "remote", c.conn.RemoteAddr().String())
		h.unregister(c)
	}
	if len(slow) > 0 {
		return fmt.Errorf("dropped %d slow push clients", len(slow))
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[*client]struct{}{}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var message Message
		if err := c.conn.ReadJSON(&message); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("push client read failed", "error", err)
			}
			return
		}
		h.dispatch(message)
	}
}

func (h *Hub) dispatch(message Message) {
	if h.acker == nil {
		return
	}
	switch message.Type {
	case MessageTypePlaybackComplete:
		h.acker.SignalPlaybackComplete()
	case MessageTypeReset:
		h.acker.Reset()
	default:
		logger.Debug("ignoring push client message", "type", string(message.Type))
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("push client write failed", "error", err)
				h.unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
