package chunk

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
)

// Sender is the outbound half of the game socket as the tracker sees it.
// Implementations JSON-encode the value and write one text frame.
type Sender interface {
	Send(v any) error
}

type pending struct {
	coord  Coordinate
	issued time.Time
}

// Tracker maps outstanding requestIds to the coordinate they were issued
// for, so responses that omit coordinates can still be attributed. Shared
// across connections; all methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]pending
}

func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]pending)}
}

// Request records the coordinate under requestID (a fresh UUID when empty),
// sends the getchunkdata commandRequest through s, and returns the id used.
// The entry stays until Resolve removes it or Sweep expires it; a send
// failure removes it immediately since no response can ever arrive.
func (t *Tracker) Request(s Sender, c Coordinate, requestID string) (string, error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	t.mu.Lock()
	t.pending[requestID] = pending{coord: c, issued: time.Now()}
	t.mu.Unlock()

	if err := t.send(s, c, requestID); err != nil {
		return "", err
	}
	return requestID, nil
}

// RequestIfAbsent issues a request for c only when nothing for c is already
// outstanding. The scan and the reservation happen under one lock, so two
// connections handling the same player position cannot both issue; the
// loser sees the winner's entry and reports false.
func (t *Tracker) RequestIfAbsent(s Sender, c Coordinate) (string, bool, error) {
	requestID := uuid.NewString()
	t.mu.Lock()
	for _, p := range t.pending {
		if p.coord == c {
			t.mu.Unlock()
			return "", false, nil
		}
	}
	t.pending[requestID] = pending{coord: c, issued: time.Now()}
	t.mu.Unlock()

	if err := t.send(s, c, requestID); err != nil {
		return "", false, err
	}
	return requestID, true, nil
}

func (t *Tracker) send(s Sender, c Coordinate, requestID string) error {
	cmd := protocol.NewCommandRequest(requestID,
		fmt.Sprintf("getchunkdata %s %d %d %d", c.Dim, c.X, c.Z, c.CommandY()))
	if err := s.Send(cmd); err != nil {
		t.mu.Lock()
		delete(t.pending, requestID)
		t.mu.Unlock()
		return err
	}
	return nil
}

// Resolve removes and returns the coordinate recorded for requestID.
// An unknown id is a normal miss (already resolved, expired, never issued).
func (t *Tracker) Resolve(requestID string) (Coordinate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[requestID]
	if !ok {
		return Coordinate{}, false
	}
	delete(t.pending, requestID)
	return p.coord, true
}

// PendingFor returns the ids of all outstanding requests for exactly c.
func (t *Tracker) PendingFor(c Coordinate) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ids []string
	for id, p := range t.pending {
		if p.coord == c {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of outstanding entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Sweep drops entries older than maxAge and reports how many were removed.
// The game never answers some requests (unloaded chunks, disconnects), so
// without this the map grows forever. A swept coordinate is simply
// re-requested by the next EnsurePresent that still misses it.
func (t *Tracker) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, p := range t.pending {
		if p.issued.Before(cutoff) {
			delete(t.pending, id)
			n++
		}
	}
	return n
}
