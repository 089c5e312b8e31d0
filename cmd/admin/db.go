package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func openIndexDB(dataDir, dbPath string) *sql.DB {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "sessions.db")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return db
}

// dbCmd lists indexed sessions, newest first.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	if *limit <= 0 {
		*limit = 20
	}
	db := openIndexDB(*dataDir, *dbPath)
	defer db.Close()

	rows, err := db.Query(`SELECT id,start_time,COALESCE(end_time,''),file,events FROM sessions ORDER BY start_time DESC LIMIT ?`, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var id, start, end, file string
		var events int64
		if err := rows.Scan(&id, &start, &end, &file, &events); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		if end == "" {
			end = "-"
		}
		fmt.Printf("%s start=%s end=%s events=%d file=%s\n", id, start, end, events, file)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}

// eventsCmd breaks one session down by event type, or dumps matching rows.
func eventsCmd(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	sessionID := fs.String("session", "", "session id (required)")
	typ := fs.String("type", "", "print rows of this event type instead of counts")
	limit := fs.Int("limit", 50, "result limit (with -type)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*sessionID) == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}
	db := openIndexDB(*dataDir, *dbPath)
	defer db.Close()

	if *typ != "" {
		rows, err := db.Query(`SELECT seq,timestamp,data_json FROM events WHERE session_id=? AND event_type=? ORDER BY seq LIMIT ?`,
			*sessionID, *typ, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var seq int64
			var ts, data string
			if err := rows.Scan(&seq, &ts, &data); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			fmt.Printf("%6d %s %s\n", seq, ts, data)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}
		return
	}

	rows, err := db.Query(`SELECT event_type,COUNT(*) FROM events WHERE session_id=? GROUP BY event_type ORDER BY event_type`, *sessionID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
	defer rows.Close()
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			fmt.Fprintln(os.Stderr, "scan:", err)
			os.Exit(1)
		}
		fmt.Printf("%-20s %d\n", eventType, n)
	}
	if err := rows.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "rows:", err)
		os.Exit(1)
	}
}
