package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a secondary sqlite read-model of sessions and their events. The
// JSONL log is the source of truth; writes go through a single-writer
// goroutine and are dropped under backpressure rather than stalling the
// dispatch path.
type Index struct {
	db *sql.DB

	ch   chan indexReq
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type indexKind int

const (
	reqSessionStart indexKind = iota + 1
	reqSessionEnd
	reqEvent
)

type indexReq struct {
	kind indexKind

	sessionID string
	at        time.Time
	fileName  string
	total     int

	event Event
}

func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	idx := &Index{
		db: db,
		ch: make(chan indexReq, 8192),
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		idx.loop()
	}()
	return idx, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-style event workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			start_time TEXT NOT NULL,
			end_time TEXT,
			file TEXT NOT NULL,
			events INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			event_type TEXT NOT NULL,
			data_json TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(session_id, event_type);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (x *Index) Close() error {
	var err error
	x.once.Do(func() {
		x.closed.Store(true)
		close(x.ch)
		x.wg.Wait()
		err = x.db.Close()
	})
	return err
}

func (x *Index) sessionStart(id string, at time.Time, fileName string) {
	x.enqueue(indexReq{kind: reqSessionStart, sessionID: id, at: at, fileName: fileName})
}

func (x *Index) sessionEnd(id string, at time.Time, total int) {
	x.enqueue(indexReq{kind: reqSessionEnd, sessionID: id, at: at, total: total})
}

func (x *Index) writeEvent(ev Event) {
	x.enqueue(indexReq{kind: reqEvent, event: ev})
}

func (x *Index) enqueue(r indexReq) {
	if x == nil || x.closed.Load() {
		return
	}
	select {
	case x.ch <- r:
	default:
		// Dropped; the JSONL log still has the record.
	}
}

func (x *Index) loop() {
	insertSession, _ := x.db.Prepare(`INSERT OR REPLACE INTO sessions(id,start_time,end_time,file,events) VALUES(?,?,NULL,?,0)`)
	endSession, _ := x.db.Prepare(`UPDATE sessions SET end_time=?, events=? WHERE id=?`)
	insertEvent, _ := x.db.Prepare(`INSERT OR REPLACE INTO events(session_id,seq,timestamp,event_type,data_json) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if endSession != nil {
			_ = endSession.Close()
		}
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
	}()

	seq := make(map[string]int)
	for r := range x.ch {
		switch r.kind {
		case reqSessionStart:
			if insertSession != nil {
				_, _ = insertSession.Exec(r.sessionID, r.at.UTC().Format(time.RFC3339), r.fileName)
			}
			seq[r.sessionID] = 0
		case reqSessionEnd:
			if endSession != nil {
				_, _ = endSession.Exec(r.at.UTC().Format(time.RFC3339), r.total, r.sessionID)
			}
			delete(seq, r.sessionID)
		case reqEvent:
			if insertEvent == nil {
				continue
			}
			data, err := json.Marshal(r.event.Data)
			if err != nil {
				continue
			}
			n := seq[r.event.SessionID]
			seq[r.event.SessionID] = n + 1
			_, _ = insertEvent.Exec(r.event.SessionID, n, r.event.Timestamp, r.event.Type, string(data))
		}
	}
}

// SessionEventCount reads back the number of indexed events for a session.
func (x *Index) SessionEventCount(sessionID string) (int, error) {
	var n int
	err := x.db.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id=?`, sessionID).Scan(&n)
	return n, err
}
