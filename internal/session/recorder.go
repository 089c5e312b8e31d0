// Package session records gameplay sessions: start/end lifecycle plus a
// durable event stream. Events append to a zstd-compressed JSONL file per
// session, with an optional sqlite index for queries.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Event is one recorded entry of a session's JSONL stream.
type Event struct {
	Timestamp string `json:"timestamp"`
	SessionID string `json:"-"`
	Type      string `json:"event_type"`
	Data      any    `json:"data"`
}

// Info is the session identity broadcast to viewers.
type Info struct {
	ID        string
	StartTime time.Time
	FileName  string
}

// Recorder owns the logical session. A session starts when the first player
// is identified and ends when the last leaves. Safe for concurrent use.
type Recorder struct {
	log     *log.Logger
	dataDir string
	index   *Index // optional

	mu     sync.Mutex
	active bool
	info   Info
	count  int
	w      *jsonlWriter

	// lastStamp/lastSeq disambiguate ids when sessions restart within the
	// same second, e.g. a clear right after a join.
	lastStamp string
	lastSeq   int
}

func NewRecorder(dataDir string, index *Index, logger *log.Logger) *Recorder {
	return &Recorder{log: logger, dataDir: dataDir, index: index}
}

// Start opens a new session. Starting over an active session ends it first.
func (r *Recorder) Start() (Info, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		r.endLocked()
	}

	now := time.Now().UTC()
	stamp := now.Format("20060102_150405")
	if stamp == r.lastStamp {
		r.lastSeq++
		stamp = fmt.Sprintf("%s_%d", stamp, r.lastSeq)
	} else {
		r.lastStamp = stamp
		r.lastSeq = 0
	}
	id := "minecraft_session_" + stamp
	fileName := id + ".jsonl.zst"

	w, err := newJSONLWriter(filepath.Join(r.dataDir, "sessions", fileName))
	if err != nil {
		return Info{}, err
	}

	r.active = true
	r.info = Info{ID: id, StartTime: now, FileName: fileName}
	r.count = 0
	r.w = w

	r.index.sessionStart(id, now, fileName)
	r.recordLocked("session_start", map[string]any{"session_id": id, "server_version": "1.0"})
	r.log.Printf("session started: %s", id)
	return r.info, nil
}

// End closes the active session, writing the session_end event.
func (r *Recorder) End() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endLocked()
}

func (r *Recorder) endLocked() {
	if !r.active {
		return
	}
	now := time.Now().UTC()
	r.recordLocked("session_end", map[string]any{
		"session_id":       r.info.ID,
		"duration_seconds": now.Sub(r.info.StartTime).Seconds(),
		"total_events":     r.count,
	})
	r.index.sessionEnd(r.info.ID, now, r.count)
	if err := r.w.Close(); err != nil {
		r.log.Printf("close session log %s: %v", r.info.FileName, err)
	}
	r.log.Printf("session ended: %s (%d events)", r.info.ID, r.count)
	r.active = false
	r.w = nil
}

// Record appends one event. Outside an active session there is nothing to
// attach the event to, so it is dropped.
func (r *Recorder) Record(eventType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.recordLocked(eventType, data)
}

func (r *Recorder) recordLocked(eventType string, data any) {
	ev := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: r.info.ID,
		Type:      eventType,
		Data:      data,
	}
	if err := r.w.Write(ev); err != nil {
		r.log.Printf("record %s: %v", eventType, err)
		return
	}
	r.count++
	r.index.writeEvent(ev)
}

// Active reports whether a session is running, with its info when so.
func (r *Recorder) Active() (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info, r.active
}

// EventCount returns the number of events recorded in the active session.
func (r *Recorder) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// jsonlWriter appends JSON lines through a zstd encoder, flushed per write
// so a crash loses at most the entry being written.
type jsonlWriter struct {
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func newJSONLWriter(path string) (*jsonlWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &jsonlWriter{f: f, enc: enc, w: bufio.NewWriterSize(enc, 128*1024)}, nil
}

func (w *jsonlWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush session log: %w", err)
	}
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	return err
}
