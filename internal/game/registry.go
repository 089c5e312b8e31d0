package game

import (
	"sync"

	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
)

// PlayerState is the live view of one identified player.
type PlayerState struct {
	ID   string
	Name string
	Pos  protocol.Vec3
	Seen bool // position received at least once
}

// Registry owns the active game connections and identified players. It is
// per-process, shared between the game dispatcher and the viewer server.
type Registry struct {
	mu      sync.Mutex
	conns   map[*Conn]struct{}
	players map[string]*PlayerState
}

func NewRegistry() *Registry {
	return &Registry{
		conns:   make(map[*Conn]struct{}),
		players: make(map[string]*PlayerState),
	}
}

func (r *Registry) addConn(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

func (r *Registry) removeConn(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
}

// SendAll delivers v to every game connection, pruning those whose send
// fails, and reports how many received it.
func (r *Registry) SendAll(v any) int {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	n := 0
	for _, c := range conns {
		if err := c.Send(v); err != nil {
			r.removeConn(c)
			continue
		}
		n++
	}
	return n
}

// SetPosition upserts a player's live position.
func (r *Registry) SetPosition(id, name string, pos protocol.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		p = &PlayerState{ID: id, Name: name}
		r.players[id] = p
	}
	if name != "" {
		p.Name = name
	}
	p.Pos = pos
	p.Seen = true
}

// AddPlayer registers an identified player without position data yet.
func (r *Registry) AddPlayer(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[id]; !ok {
		r.players[id] = &PlayerState{ID: id, Name: name}
	}
}

func (r *Registry) RemovePlayer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, id)
}

func (r *Registry) PlayerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.players)
}

// PlayerName resolves a player id to its display name, defaulting to the id.
func (r *Registry) PlayerName(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}

// Entries returns the authoritative active-player list for broadcasting.
func (r *Registry) Entries() []protocol.PlayerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]protocol.PlayerEntry, 0, len(r.players))
	for _, p := range r.players {
		e := protocol.PlayerEntry{PlayerID: p.ID, PlayerName: p.Name}
		if e.PlayerName == "" {
			e.PlayerName = p.ID
		}
		if p.Seen {
			x, y, z := p.Pos.X, p.Pos.Y, p.Pos.Z
			e.X, e.Y, e.Z = &x, &y, &z
		}
		entries = append(entries, e)
	}
	return entries
}

// Positions returns a position message per player that has one, for viewer
// connect-time replay.
func (r *Registry) Positions() []protocol.PositionMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	var msgs []protocol.PositionMsg
	for _, p := range r.players {
		if !p.Seen {
			continue
		}
		name := p.Name
		if name == "" {
			name = p.ID
		}
		msgs = append(msgs, protocol.PositionMsg{
			Type: "position", PlayerID: p.ID, PlayerName: name,
			X: p.Pos.X, Y: p.Pos.Y, Z: p.Pos.Z,
		})
	}
	return msgs
}
