// Command replay inspects a recorded session log: a summary of what
// happened, or the raw event stream filtered by type.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type logEvent struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory")
		sessPath = flag.String("session", "", "path to a session .jsonl.zst (default: latest in <data>/sessions)")
		typ      = flag.String("type", "", "only print events of this type")
		dump     = flag.Bool("dump", false, "print every event instead of the summary")
	)
	flag.Parse()

	path := strings.TrimSpace(*sessPath)
	if path == "" {
		path = latestSession(filepath.Join(*dataDir, "sessions"))
	}
	if path == "" {
		fmt.Fprintln(os.Stderr, "no session logs found; provide -session")
		os.Exit(2)
	}

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "zstd:", err)
		os.Exit(1)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var (
		total    int
		first    string
		last     string
		byType   = map[string]int{}
		players  = map[string]struct{}{}
	)
	for sc.Scan() {
		var ev logEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			fmt.Fprintf(os.Stderr, "%s: bad line: %v\n", filepath.Base(path), err)
			os.Exit(1)
		}
		total++
		if first == "" {
			first = ev.Timestamp
		}
		last = ev.Timestamp
		byType[ev.Type]++

		var data struct {
			PlayerName string `json:"player_name"`
		}
		if json.Unmarshal(ev.Data, &data) == nil && data.PlayerName != "" {
			players[data.PlayerName] = struct{}{}
		}

		if *dump || *typ != "" {
			if *typ != "" && ev.Type != *typ {
				continue
			}
			fmt.Printf("%s %-18s %s\n", ev.Timestamp, ev.Type, compact(ev.Data))
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "scan:", err)
		os.Exit(1)
	}

	if *dump || *typ != "" {
		return
	}

	fmt.Printf("session %s\n", filepath.Base(path))
	fmt.Printf("events=%d first=%s last=%s\n", total, first, last)
	if len(players) > 0 {
		names := make([]string, 0, len(players))
		for n := range players {
			names = append(names, n)
		}
		sort.Strings(names)
		fmt.Printf("players: %s\n", strings.Join(names, ", "))
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %-20s %d\n", t, byType[t])
	}
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// latestSession picks the newest log by the timestamp embedded in the file
// name; the names sort lexicographically.
func latestSession(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}
