package chunk

import (
	"log"
	"sync"
	"time"

	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
)

// DefaultBound caps the cache when no size is configured; beyond it the
// oldest-inserted record is evicted.
const DefaultBound = 200

// Record is one decoded chunk column. Immutable once stored; a newer
// response for the same coordinate replaces it wholesale.
type Record struct {
	Coord     Coordinate
	Heights   []uint8  // 256, row-major z*16+x
	Pixels    []uint32 // 256, packed ARGB, alpha opaque
	Timestamp float64  // unix seconds
	RequestID string
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Size      int     `json:"size"`
	Bound     int     `json:"maxSize"`
	Hits      uint64  `json:"hitCount"`
	Misses    uint64  `json:"missCount"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hitRate"`
}

// Store caches decoded chunk records up to a fixed bound, evicting in
// insertion order. It shares a Tracker so EnsurePresent never issues a
// second request for a coordinate that is stored or already in flight.
// Safe for concurrent use.
type Store struct {
	tracker *Tracker
	log     *log.Logger
	onEvict func(Record) // owners release derived resources (meshes) here

	mu      sync.Mutex
	records map[Coordinate]*Record
	order   []Coordinate // insertion order, oldest first
	bound   int
	hits    uint64
	misses  uint64
	evicted uint64
}

func NewStore(tracker *Tracker, bound int, logger *log.Logger, onEvict func(Record)) *Store {
	if bound <= 0 {
		bound = DefaultBound
	}
	return &Store{
		tracker: tracker,
		log:     logger,
		onEvict: onEvict,
		records: make(map[Coordinate]*Record),
		bound:   bound,
	}
}

// Put stores a decoded record, overwriting any existing one at the same
// coordinate. Returns the stored record. An overwrite keeps the original
// insertion position; only a new coordinate can push the store past its
// bound and evict the oldest entry.
func (s *Store) Put(c Coordinate, heights []uint8, pixels []uint32, requestID string, ts float64) *Record {
	rec := &Record{Coord: c, Heights: heights, Pixels: pixels, Timestamp: ts, RequestID: requestID}

	var evicted *Record
	s.mu.Lock()
	if _, exists := s.records[c]; !exists {
		s.order = append(s.order, c)
		if len(s.order) > s.bound {
			oldest := s.order[0]
			s.order = s.order[1:]
			evicted = s.records[oldest]
			delete(s.records, oldest)
			s.evicted++
		}
	}
	s.records[c] = rec
	s.mu.Unlock()

	if evicted != nil && s.onEvict != nil {
		s.onEvict(*evicted)
	}
	return rec
}

// Get returns the stored record for c, or nil. Pure lookup.
func (s *Store) Get(c Coordinate) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[c]
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	return rec
}

// EnsurePresent requests every chunk in the square of side 2*radius+1
// around c that is neither stored nor already pending, and returns the
// newly issued request ids. This is the entry point for player-position
// events; it guarantees at most one outstanding request per missing
// coordinate.
func (s *Store) EnsurePresent(sender Sender, c Coordinate, radius int32) []string {
	var issued []string
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			cc := Coordinate{Dim: c.Dim, X: c.X + dx, Z: c.Z + dz, YSlice: c.YSlice}
			if s.Get(cc) != nil {
				continue
			}
			id, fresh, err := s.tracker.RequestIfAbsent(sender, cc)
			if err != nil {
				s.log.Printf("request chunk %s: %v", cc, err)
				continue
			}
			if !fresh {
				continue
			}
			issued = append(issued, id)
		}
	}
	return issued
}

// HandleResponse decodes and stores one commandResponse frame. Coordinates
// missing from the body resolve through the tracker by requestId. Any
// failure (no data, no attributable coordinate, decode error) returns nil;
// a malformed response must never take the connection down, so nothing
// propagates.
func (s *Store) HandleResponse(hdr protocol.Header, body protocol.ChunkResponseBody) *Record {
	requestID := hdr.RequestID

	var coord Coordinate
	switch {
	case body.X != nil && body.Z != nil:
		coord = Coordinate{Dim: NormalizeDimension(body.Dimension), X: *body.X, Z: *body.Z, YSlice: AllY}
		if body.Y != nil {
			coord.YSlice = *body.Y
		}
	case requestID != "":
		tracked, ok := s.tracker.Resolve(requestID)
		if !ok {
			s.log.Printf("chunk response %s: no coordinate on body and no pending request", requestID)
			return nil
		}
		coord = tracked
	default:
		s.log.Printf("chunk response without coordinates or requestId dropped")
		return nil
	}

	heights, pixels, err := Decode(body.Data)
	if err != nil {
		s.log.Printf("chunk response %s for %s: %v", requestID, coord, err)
		return nil
	}

	// Retire the pending entry even when the body carried its own
	// coordinates, so PendingFor stops reporting a satisfied request.
	if requestID != "" {
		s.tracker.Resolve(requestID)
	}
	return s.Put(coord, heights, pixels, requestID, float64(time.Now().UnixNano())/1e9)
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Size:      len(s.records),
		Bound:     s.bound,
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evicted,
	}
	if total := s.hits + s.misses; total > 0 {
		st.HitRate = float64(s.hits) / float64(total)
	}
	return st
}
