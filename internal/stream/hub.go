// Package stream broadcasts detection results to websocket clients.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/dudu/facesignal/internal/expression"
	"github.com/dudu/facesignal/internal/posture"
	"github.com/dudu/facesignal/internal/session"
	"github.com/dudu/facesignal/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message types
const (
	TypeWelcome = "welcome"
	TypeReport  = "report"
	TypePing    = "ping"
	TypePong    = "pong"
)

// Report is the classification of one frame as sent to clients.
type Report struct {
	SessionID   string            `json:"session_id"`
	Frame       uint64            `json:"frame"`
	Timestamp   time.Time         `json:"timestamp"`
	Expressions expression.Result `json:"expressions"`
	Posture     posture.Result    `json:"posture"`
}

// Message is the websocket envelope
type Message struct {
	Type      string `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Status is served on /healthz
type Status struct {
	Ready     bool          `json:"ready"`
	State     string        `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
	Stats     session.Stats `json:"stats"`
	Clients   int           `json:"clients"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Hub fans reports out to connected clients. Slow clients drop reports
// rather than stall the detection loop.
type Hub struct {
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	status   func() Status

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	frames  atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Hub
type Option func(*Hub)

// WithLogger sets the hub logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Hub) { h.log = l }
}

// WithStatus sets the readiness source for /healthz.
func WithStatus(fn func() Status) Option {
	return func(h *Hub) { h.status = fn }
}

// NewHub creates a hub with no clients
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		log:     log.Discard(),
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		status: func() Status { return Status{Ready: true, State: "unknown"} },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler serves /ws and /healthz
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/healthz", h.ServeHealth)
	return mux
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many reports were not delivered to slow clients
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish sends r to every client. Frame and Timestamp are filled in when
// zero.
func (h *Hub) Publish(r Report) {
	if r.Frame == 0 {
		r.Frame = h.frames.Add(1)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	msg := Message{Type: TypeReport, Payload: r, Timestamp: r.Timestamp.Unix()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
			h.log.WithField("client_id", c.id).Debug("client too slow, report dropped")
		}
	}
}

// ServeWS upgrades the connection and streams reports until the client
// goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	c := &client{id: clientID, conn: conn, send: make(chan Message, sendBuffer)}

	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.log.WithField("client_id", clientID).Info("websocket client connected")

	h.reply(c, Message{
		Type:      TypeWelcome,
		ClientID:  clientID,
		Timestamp: time.Now().Unix(),
		Payload:   h.status(),
	})

	go h.writePump(c)
	h.readPump(c)

	h.unregister(c)
	h.log.WithField("client_id", clientID).Info("websocket client disconnected")
}

// ServeHealth reports session readiness. Not ready answers 503.
func (h *Hub) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	st := h.status()
	st.Clients = h.Clients()

	w.Header().Set("Content-Type", "application/json")
	if !st.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(st); err != nil {
		h.log.WithError(err).Debug("failed to write health response")
	}
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	if old, ok := h.clients[c.id]; ok {
		close(old.send)
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[c.id]; ok && cur == c {
		close(c.send)
		delete(h.clients, c.id)
	}
}

func (h *Hub) readPump(c *client) {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).WithField("client_id", c.id).Warn("websocket read failed")
			}
			return
		}

		switch msg.Type {
		case TypePing:
			h.reply(c, Message{Type: TypePong, ClientID: c.id, Timestamp: time.Now().Unix()})
		default:
			h.log.WithFields(log.Fields{"client_id": c.id, "type": msg.Type}).Debug("ignoring client message")
		}
	}
}

// reply queues msg for c unless the client is gone or backed up.
func (h *Hub) reply(c *client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				h.log.WithError(err).WithField("client_id", c.id).Debug("websocket write failed")
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
