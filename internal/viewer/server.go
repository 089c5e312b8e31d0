package viewer

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/juedwards/minecraft-assessment-server/internal/chunk"
	"github.com/juedwards/minecraft-assessment-server/internal/game"
	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
	"github.com/juedwards/minecraft-assessment-server/internal/session"
)

// serverMessagePrefix marks relayed viewer chat in yellow bold so players
// can tell it apart from in-game chat.
const serverMessagePrefix = "§e§l[Server]§r §f"

// Server accepts viewer WebSocket connections and relays viewer commands
// back to the game side.
type Server struct {
	hub      *Hub
	store    *chunk.Store
	tracker  *chunk.Tracker
	registry *game.Registry
	recorder *session.Recorder
	log      *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, store *chunk.Store, tracker *chunk.Tracker, registry *game.Registry, recorder *session.Recorder, logger *log.Logger) *Server {
	return &Server{
		hub:      hub,
		store:    store,
		tracker:  tracker,
		registry: registry,
		recorder: recorder,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := s.hub.add(conn)
		defer s.hub.remove(c)
		s.log.Printf("viewer connected from %s (%d total)", r.RemoteAddr, s.hub.ClientCount())

		s.replay(c)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleCommand(c, msg)
		}
		s.log.Printf("viewer disconnected from %s", r.RemoteAddr)
	}
}

// replay brings a fresh viewer up to date: the session banner, the active
// player list and the last known positions.
func (s *Server) replay(c *client) {
	if info, active := s.recorder.Active(); active {
		c.send(protocol.SessionInfoMsg{
			Type:      "session_info",
			SessionID: info.ID,
			StartTime: info.StartTime.Format(time.RFC3339),
			FileName:  info.FileName,
		})
	}
	c.send(protocol.ActivePlayersMsg{Type: "active_players", Players: s.registry.Entries()})
	for _, pos := range s.registry.Positions() {
		c.send(pos)
	}
}

type viewerCommand struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Command string `json:"command"`
	Player  string `json:"player"`
}

func (s *Server) handleCommand(c *client, raw []byte) {
	var cmd viewerCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.log.Printf("bad viewer command: %v", err)
		return
	}

	switch cmd.Type {
	case "send_message":
		if cmd.Message == "" {
			return
		}
		n := s.registry.SendAll(protocol.Tellraw(serverMessagePrefix + cmd.Message))
		s.recorder.Record("server_message", map[string]any{
			"message":    cmd.Message,
			"recipients": n,
		})
		s.log.Printf("relayed message to %d game connections", n)

	case "game_command":
		if cmd.Command == "" {
			return
		}
		line := strings.TrimPrefix(cmd.Command, "/")
		if cmd.Player != "" {
			// @t is the viewer's placeholder for the selected player.
			// Bedrock selectors take the name bare, not quoted.
			line = strings.ReplaceAll(line, "@t", fmt.Sprintf("@a[name=%s]", cmd.Player))
		}
		n := s.registry.SendAll(protocol.NewPlayerCommand(line))
		s.recorder.Record("game_command", map[string]any{
			"command":    line,
			"player":     cmd.Player,
			"recipients": n,
		})
		s.log.Printf("relayed command %q to %d game connections", line, n)

	case "clear_session":
		s.recorder.End()
		info, err := s.recorder.Start()
		if err != nil {
			s.log.Printf("restart session: %v", err)
			c.send(protocol.ErrorMsg{Type: "error", Error: "failed to start a new session"})
			return
		}
		s.hub.Broadcast(protocol.SessionInfoMsg{
			Type:      "session_cleared",
			SessionID: info.ID,
			StartTime: info.StartTime.Format(time.RFC3339),
			FileName:  info.FileName,
		})

	case "analyze_request":
		c.send(protocol.ErrorMsg{Type: "error", Error: "assessment analysis is not available on this server"})

	default:
		c.send(protocol.ErrorMsg{Type: "error", Error: "unknown command type: " + cmd.Type})
	}
}

// StatusHandler reports liveness plus cache and session counters.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status := map[string]any{
			"status":          "ok",
			"activePlayers":   s.registry.PlayerCount(),
			"viewers":         s.hub.ClientCount(),
			"chunkCache":      s.store.Stats(),
			"pendingRequests": s.tracker.Len(),
		}
		if info, active := s.recorder.Active(); active {
			status["session"] = map[string]any{
				"id":        info.ID,
				"startTime": info.StartTime.Format(time.RFC3339),
				"events":    s.recorder.EventCount(),
			}
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(status)
	}
}
