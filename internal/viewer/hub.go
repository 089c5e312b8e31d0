// Package viewer serves the browser-facing WebSocket. Every simplified game
// update is fanned out to all connected viewers, and viewer commands travel
// the other way to the game connections.
package viewer

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientBuffer = 1024
	writeWait    = 5 * time.Second
)

// Hub fans marshalled messages out to every connected viewer. Each client
// gets a buffered queue drained by its own writer goroutine; a client whose
// queue overflows is dropped rather than stalling the rest.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	log     *log.Logger
}

type client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	out    chan []byte
	closed bool
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{clients: make(map[*client]struct{}), log: logger}
}

// Broadcast marshals v once and queues it on every client.
func (h *Hub) Broadcast(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Printf("broadcast marshal: %v", err)
		return
	}
	h.mu.Lock()
	var dead []*client
	for c := range h.clients {
		if !c.enqueue(b) {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		delete(h.clients, c)
	}
	remaining := len(h.clients)
	h.mu.Unlock()

	for _, c := range dead {
		c.shutdown()
		h.log.Printf("slow viewer dropped, %d remain", remaining)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{conn: conn, out: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	go c.writeLoop()
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.shutdown()
}

// send marshals and queues a message for this client only.
func (c *client) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.enqueue(b)
}

// enqueue reports false when the queue is full or already shut down.
func (c *client) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- b:
		return true
	default:
		return false
	}
}

// writeLoop drains the queue until shutdown closes it, then closes the
// connection so the handler's read loop unblocks.
func (c *client) writeLoop() {
	defer c.conn.Close()
	for b := range c.out {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
}

func (c *client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}
