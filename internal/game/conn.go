package game

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Conn wraps one game-client socket. gorilla allows a single concurrent
// writer, so sends from the dispatcher, the chunk tracker and the viewer
// command fan-out all serialize on the mutex.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func newConn(ws *websocket.Conn) *Conn { return &Conn{ws: ws} }

// Send JSON-encodes v and writes one text frame. Satisfies chunk.Sender.
func (c *Conn) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) close() error {
	return c.ws.Close()
}
