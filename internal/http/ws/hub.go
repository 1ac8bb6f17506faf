// Package ws implements the realtime dashboard channel: a WebSocket hub
// that fans out statsUpdate, linked, and unlinked events to every connected
// listener.
package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer bounds each client's outbound queue; a listener that falls
	// this far behind is dropped instead of blocking the hub.
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect cross-origin; the channel is read-only telemetry.
	CheckOrigin: func(*http.Request) bool { return true },
}

// envelope is the wire shape of every pushed event.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected listeners and fans out broadcasts. All state is
// owned by the run loop; registration and broadcasting go through channels.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]struct{}
	log        zerolog.Logger
}

// NewHub constructs a hub; call Run to start it.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		clients:    make(map[*client]struct{}),
		log:        log,
	}
}

// Run owns the client set until ctx-free shutdown; meant to be started as a
// goroutine from main and left running for the process lifetime.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast pushes one event to every connected listener. Non-blocking: if
// the hub's queue is full the event is dropped with a warning, since stats
// pushes are superseded by the next one anyway.
func (h *Hub) Broadcast(event string, payload any) {
	b, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		h.log.Warn().Err(err).Str("event", event).Msg("broadcast marshal failed")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.log.Warn().Str("event", event).Msg("broadcast queue full, dropping")
	}
}

// Serve handles GET /ws by upgrading the connection and attaching it to the
// hub.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register <- cl

	go cl.writePump(h)
	go cl.readPump(h)
}

// readPump drains inbound frames; the channel is push-only, so reads exist
// solely to notice closes and answer pings.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump(h *Hub) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
