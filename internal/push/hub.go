package push

import (
	"encoding/json"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/this-is-a-tpyo/mel-metro-pid/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Commands sent to display clients
const (
	CommandRefresh = "refresh"
	CommandAppend  = "append"
)

// Message is a server-initiated push message
type Message struct {
	Command string                `json:"command"`
	Data    *models.DepartureWire `json:"data,omitempty"`
}

type client struct {
	id       uuid.UUID
	platform string
	conn     *websocket.Conn
	send     chan []byte
}

// Hub fans board changes out to websocket clients. Each client listens to
// one platform. A client whose buffer is full is disconnected rather than
// blocking the others.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub accepting connections from the given origins ("*" for any)
func NewHub(allowedOrigins []string) *Hub {
	h := &Hub{clients: make(map[*client]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// ServeWS upgrades the request and subscribes the connection to a platform.
// The client is told to refresh straight away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, platform string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Push: upgrade failed: %v", err)
		return
	}

	c := &client{
		id:       uuid.New(),
		platform: platform,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}
	h.register(c)
	log.Printf("Push: client %s connected, listening to platform %s", c.id, platform)

	h.broadcast(func(other *client) bool { return other == c }, mustEncode(Message{Command: CommandRefresh}))

	go h.writePump(c)
	h.readPump(c)
}

// Refresh tells every client to reload the board
func (h *Hub) Refresh() {
	h.broadcast(func(*client) bool { return true }, mustEncode(Message{Command: CommandRefresh}))
}

// Append sends a newly enriched departure to the clients of a platform
func (h *Hub) Append(platform string, dep models.Departure) {
	wire := dep.Wire()
	msg := mustEncode(Message{Command: CommandAppend, Data: &wire})
	h.broadcast(func(c *client) bool { return c.platform == platform }, msg)
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

func (h *Hub) broadcast(match func(*client) bool, msg []byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("Push: client %s too slow, disconnecting", c.id)
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// unregister removes a client and closes its send channel, once
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump discards client messages and detects disconnection
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
		log.Printf("Push: client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Push: client %s read error: %v", c.id, err)
			}
			return
		}
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
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
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

func mustEncode(m Message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// Message holds only plain fields
		panic(err)
	}
	return data
}
