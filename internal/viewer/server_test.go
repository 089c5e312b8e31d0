package viewer

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/juedwards/minecraft-assessment-server/internal/chunk"
	"github.com/juedwards/minecraft-assessment-server/internal/config"
	"github.com/juedwards/minecraft-assessment-server/internal/game"
	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
	"github.com/juedwards/minecraft-assessment-server/internal/session"
)

type stack struct {
	hub      *Hub
	registry *game.Registry
	recorder *session.Recorder
	store    *chunk.Store
	tracker  *chunk.Tracker

	viewerTS *httptest.Server
	gameTS   *httptest.Server
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	tracker := chunk.NewTracker()
	store := chunk.NewStore(tracker, 0, logger, nil)
	recorder := session.NewRecorder(t.TempDir(), nil, logger)
	registry := game.NewRegistry()
	hub := NewHub(logger)

	gameSrv := game.NewServer(store, registry, recorder, hub, config.Defaults(), logger)
	viewSrv := NewServer(hub, store, tracker, registry, recorder, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/", viewSrv.Handler())
	mux.HandleFunc("/status", viewSrv.StatusHandler())

	st := &stack{
		hub:      hub,
		registry: registry,
		recorder: recorder,
		store:    store,
		tracker:  tracker,
		viewerTS: httptest.NewServer(mux),
		gameTS:   httptest.NewServer(gameSrv.Handler()),
	}
	t.Cleanup(func() {
		st.viewerTS.Close()
		st.gameTS.Close()
		st.recorder.End()
	})
	return st
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true, failing on timeout.
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		if match(m) {
			return m
		}
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

func msgType(typ string) func(map[string]any) bool {
	return func(m map[string]any) bool {
		s, _ := m["type"].(string)
		return s == typ
	}
}

// commandLine digs the command text out of a game-bound envelope.
func commandLine(m map[string]any) string {
	body, _ := m["body"].(map[string]any)
	s, _ := body["commandLine"].(string)
	return s
}

func TestViewer_ReplayOnConnect(t *testing.T) {
	st := newStack(t)
	info, err := st.recorder.Start()
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	st.registry.AddPlayer("p1", "Alex")
	st.registry.SetPosition("p1", "Alex", protocol.Vec3{X: 1, Y: 64, Z: -3})

	conn := dial(t, st.viewerTS)

	si := readUntil(t, conn, "session_info", msgType("session_info"))
	if si["sessionId"] != info.ID {
		t.Fatalf("sessionId = %v, want %s", si["sessionId"], info.ID)
	}
	ap := readUntil(t, conn, "active_players", msgType("active_players"))
	players, _ := ap["players"].([]any)
	if len(players) != 1 {
		t.Fatalf("active_players carried %d players, want 1", len(players))
	}
	pos := readUntil(t, conn, "position", msgType("position"))
	if pos["playerName"] != "Alex" || pos["y"].(float64) != 64 {
		t.Fatalf("replayed position = %v", pos)
	}
}

func TestViewer_BroadcastFanOut(t *testing.T) {
	st := newStack(t)
	a := dial(t, st.viewerTS)
	b := dial(t, st.viewerTS)

	// Both see the replay snapshot first; wait for it so the broadcast
	// lands after registration.
	readUntil(t, a, "active_players", msgType("active_players"))
	readUntil(t, b, "active_players", msgType("active_players"))

	st.hub.Broadcast(protocol.ChatMsg{Type: "player_chat", PlayerName: "Alex", Message: "hi"})

	for _, conn := range []*websocket.Conn{a, b} {
		m := readUntil(t, conn, "player_chat", msgType("player_chat"))
		if m["message"] != "hi" {
			t.Fatalf("message = %v", m["message"])
		}
	}
}

func TestViewer_SendMessageReachesGameClients(t *testing.T) {
	st := newStack(t)
	gconn := dial(t, st.gameTS)
	// The greeting status line confirms the game connection is registered.
	readUntil(t, gconn, "greeting", func(m map[string]any) bool {
		body, _ := m["body"].(map[string]any)
		_, ok := body["statusMessage"]
		return ok
	})

	vconn := dial(t, st.viewerTS)
	readUntil(t, vconn, "replay", msgType("active_players"))
	if err := vconn.WriteJSON(map[string]any{"type": "send_message", "message": "wrap it up"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readUntil(t, gconn, "tellraw", func(m map[string]any) bool {
		return strings.HasPrefix(commandLine(m), "tellraw ")
	})
	line := commandLine(m)
	if !strings.Contains(line, "wrap it up") {
		t.Fatalf("tellraw lost the message: %q", line)
	}
	if !strings.Contains(line, "§e§l[Server]§r §f") {
		t.Fatalf("tellraw missing the server prefix: %q", line)
	}
}

func TestViewer_GameCommandTargetsSelectedPlayer(t *testing.T) {
	st := newStack(t)
	gconn := dial(t, st.gameTS)
	readUntil(t, gconn, "greeting", func(m map[string]any) bool {
		body, _ := m["body"].(map[string]any)
		_, ok := body["statusMessage"]
		return ok
	})

	vconn := dial(t, st.viewerTS)
	readUntil(t, vconn, "replay", msgType("active_players"))
	if err := vconn.WriteJSON(map[string]any{
		"type":    "game_command",
		"command": "/give @t diamond 1",
		"player":  "Alex",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readUntil(t, gconn, "give command", func(m map[string]any) bool {
		return strings.HasPrefix(commandLine(m), "give ")
	})
	want := `give @a[name=Alex] diamond 1`
	if commandLine(m) != want {
		t.Fatalf("commandLine = %q, want %q", commandLine(m), want)
	}
}

func TestViewer_ClearSessionStartsFresh(t *testing.T) {
	st := newStack(t)
	old, err := st.recorder.Start()
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	conn := dial(t, st.viewerTS)
	readUntil(t, conn, "replay", msgType("active_players"))
	if err := conn.WriteJSON(map[string]any{"type": "clear_session"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	m := readUntil(t, conn, "session_cleared", msgType("session_cleared"))
	if m["sessionId"] == old.ID {
		t.Fatalf("session id did not change on clear")
	}
	info, active := st.recorder.Active()
	if !active || info.ID == old.ID {
		t.Fatalf("recorder not restarted: active=%v id=%s", active, info.ID)
	}
}

func TestViewer_AnalyzeRequestAnswered(t *testing.T) {
	st := newStack(t)
	conn := dial(t, st.viewerTS)
	readUntil(t, conn, "replay", msgType("active_players"))

	if err := conn.WriteJSON(map[string]any{"type": "analyze_request"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readUntil(t, conn, "error reply", msgType("error"))
	if m["error"] == "" {
		t.Fatalf("error reply carried no text")
	}
}

func TestViewer_StatusEndpoint(t *testing.T) {
	st := newStack(t)
	st.registry.AddPlayer("p1", "Alex")

	res, err := http.Get(st.viewerTS.URL + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v", body["status"])
	}
	if body["activePlayers"].(float64) != 1 {
		t.Fatalf("activePlayers = %v", body["activePlayers"])
	}
	if _, ok := body["chunkCache"].(map[string]any); !ok {
		t.Fatalf("chunkCache missing: %v", body)
	}
}
