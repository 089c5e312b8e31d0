package viewer

import (
	"io"
	"log"
	"testing"

	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
)

func newTestHub() *Hub {
	return NewHub(log.New(io.Discard, "", 0))
}

// register wires a client with a chosen queue depth and no writer goroutine
// so the tests control draining.
func register(h *Hub, depth int) *client {
	c := &client{out: make(chan []byte, depth)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	h := newTestHub()
	a := register(h, 4)
	b := register(h, 4)

	h.Broadcast(protocol.ChatMsg{Type: "player_chat", Message: "one"})
	h.Broadcast(protocol.ChatMsg{Type: "player_chat", Message: "two"})

	for name, c := range map[string]*client{"a": a, "b": b} {
		if got := len(c.out); got != 2 {
			t.Fatalf("client %s queued %d messages, want 2", name, got)
		}
		first := <-c.out
		second := <-c.out
		if string(first) == string(second) {
			t.Fatalf("client %s received duplicate payloads", name)
		}
	}
	if h.ClientCount() != 2 {
		t.Fatalf("ClientCount = %d, want 2", h.ClientCount())
	}
}

func TestHub_SlowClientPruned(t *testing.T) {
	h := newTestHub()
	slow := register(h, 1)
	fast := register(h, 8)

	h.Broadcast(protocol.ChatMsg{Type: "player_chat", Message: "one"})
	h.Broadcast(protocol.ChatMsg{Type: "player_chat", Message: "two"})

	if h.ClientCount() != 1 {
		t.Fatalf("slow client not pruned: ClientCount = %d", h.ClientCount())
	}
	if len(fast.out) != 2 {
		t.Fatalf("fast client queued %d, want 2", len(fast.out))
	}
	if !slow.closed {
		t.Fatalf("pruned client not shut down")
	}
	// A pruned client refuses further payloads instead of panicking on its
	// closed queue.
	if slow.enqueue([]byte("x")) {
		t.Fatalf("enqueue succeeded after shutdown")
	}
}

func TestHub_ShutdownIsIdempotent(t *testing.T) {
	h := newTestHub()
	c := register(h, 1)

	h.remove(c)
	h.remove(c)
	c.send(protocol.ErrorMsg{Type: "error", Error: "late"})

	if h.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", h.ClientCount())
	}
}
