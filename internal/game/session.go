// Package game serves the game-facing WebSocket: it subscribes to gameplay
// events, classifies inbound frames, drives the chunk request/response
// pipeline and forwards simplified messages to the viewer broadcast.
package game

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/juedwards/minecraft-assessment-server/internal/chunk"
	"github.com/juedwards/minecraft-assessment-server/internal/config"
	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
	"github.com/juedwards/minecraft-assessment-server/internal/session"
)

// The \\n stays escaped so it survives the tellraw rawtext JSON intact.
const welcomeText = "§6§l======\\n§r§eYour game data is being recorded.\\n§eIf you do not want this please exit now.\\n§6§l======"

// Broadcaster fans a simplified message out to all viewer clients.
type Broadcaster interface {
	Broadcast(v any)
}

// Session dispatches frames from one game connection. Not safe for
// concurrent use; the read loop is the only caller.
type Session struct {
	sender   chunk.Sender
	store    *chunk.Store
	registry *Registry
	recorder *session.Recorder
	bcast    Broadcaster
	cfg      config.Config
	log      *log.Logger

	playerID    string
	playerName  string
	welcomeSent bool
	travelCount int
}

func NewSession(sender chunk.Sender, store *chunk.Store, registry *Registry, recorder *session.Recorder, bcast Broadcaster, cfg config.Config, logger *log.Logger) *Session {
	return &Session{
		sender:   sender,
		store:    store,
		registry: registry,
		recorder: recorder,
		bcast:    bcast,
		cfg:      cfg,
		log:      logger,
	}
}

// Greet sends the connect-time status line and the event subscriptions.
// Send failures are logged and skipped; the game client may reconnect.
func (s *Session) Greet() {
	status := "Connected to minecraft-assessment-server"
	if info, active := s.recorder.Active(); active {
		status += " (session " + info.ID + ")"
	}
	if err := s.sender.Send(protocol.NewStatusMessage(status)); err != nil {
		s.log.Printf("send status: %v", err)
	}
	subscribed := 0
	for _, name := range s.cfg.SubscribeEvents {
		if err := s.sender.Send(protocol.NewSubscribe(name)); err != nil {
			s.log.Printf("subscribe %s: %v", name, err)
			continue
		}
		subscribed++
	}
	s.log.Printf("subscribed to %d event types", subscribed)
}

// Dispatch classifies and handles one raw inbound frame. A malformed frame
// is discarded; the connection stays open.
func (s *Session) Dispatch(raw []byte) {
	f, err := protocol.DecodeFrame(raw)
	if err != nil {
		s.log.Printf("malformed frame dropped: %v", err)
		return
	}

	if f.IsCommandResponse() {
		body, ok := protocol.ParseChunkResponseBody(f.Body)
		if !ok {
			// Responses to subscribe/tellraw commands; nothing to do.
			return
		}
		if rec := s.store.HandleResponse(f.Header, body); rec != nil {
			s.bcast.Broadcast(chunkMsg(rec))
		}
		return
	}

	body, err := protocol.ParseEventBody(f.Body)
	if err != nil {
		s.log.Printf("malformed body dropped (%s): %v", f.Header.EventName, err)
		return
	}
	if s.playerID == "" && body.Player != nil {
		s.identify(body.Player)
	}
	if f.IsEvent() {
		s.handleEvent(f.Header.EventName, body)
	}
}

// Close runs the disconnect path: player removal, broadcasts, and session
// end when the last player leaves.
func (s *Session) Close() {
	if s.playerID == "" {
		return
	}
	s.recorder.Record("player_leave", map[string]any{
		"player_id":   s.playerID,
		"player_name": s.playerName,
	})
	s.registry.RemovePlayer(s.playerID)
	s.bcast.Broadcast(protocol.DisconnectMsg{Type: "disconnect", PlayerID: s.playerID})
	s.bcast.Broadcast(protocol.ActivePlayersMsg{Type: "active_players", Players: s.registry.Entries()})
	if s.registry.PlayerCount() == 0 {
		s.log.Printf("last player left, ending session")
		s.recorder.End()
	}
}

// identify handles the first frame carrying a player object: the initial
// join/snapshot. The first active player starts a logical session.
func (s *Session) identify(p *protocol.Player) {
	s.playerID = string(p.ID)
	if s.playerID == "" {
		s.playerID = fmt.Sprintf("Player_%d", time.Now().Unix()%1000)
	}
	s.playerName = p.Name
	if s.playerName == "" {
		s.playerName = s.playerID
	}

	first := s.registry.PlayerCount() == 0
	s.registry.AddPlayer(s.playerID, s.playerName)
	s.log.Printf("identified player %s (%s)", s.playerName, s.playerID)

	if first {
		info, err := s.recorder.Start()
		if err != nil {
			s.log.Printf("start session: %v", err)
		} else {
			s.bcast.Broadcast(protocol.SessionInfoMsg{
				Type:      "session_info",
				SessionID: info.ID,
				StartTime: info.StartTime.Format(time.RFC3339),
				FileName:  info.FileName,
			})
		}
	}
	if !s.welcomeSent {
		if err := s.sender.Send(protocol.Tellraw(welcomeText)); err != nil {
			s.log.Printf("send welcome: %v", err)
		}
		s.welcomeSent = true
	}
	s.recorder.Record("player_join", map[string]any{
		"player_id":   s.playerID,
		"player_name": s.playerName,
	})
	if p.Position != nil {
		s.registry.SetPosition(s.playerID, s.playerName, *p.Position)
		s.bcast.Broadcast(protocol.PositionMsg{
			Type: "position", PlayerID: s.playerID, PlayerName: s.playerName,
			X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z,
		})
	}
	s.bcast.Broadcast(protocol.ActivePlayersMsg{Type: "active_players", Players: s.registry.Entries()})
}

func (s *Session) handleEvent(name string, b protocol.EventBody) {
	playerID, playerName := s.playerID, s.playerName
	if b.Player != nil {
		if id := string(b.Player.ID); id != "" {
			playerID = id
		}
		if b.Player.Name != "" {
			playerName = b.Player.Name
		}
	}

	switch name {
	case "PlayerTravelled":
		if b.Player == nil || b.Player.Position == nil {
			return
		}
		pos := *b.Player.Position
		s.registry.SetPosition(playerID, playerName, pos)

		// Durable recording is throttled; the live broadcast and the
		// chunk-presence check run on every travelled event.
		s.travelCount++
		if s.travelCount%s.cfg.PositionRecordEvery == 0 {
			s.recorder.Record("player_position", map[string]any{
				"player_id":   playerID,
				"player_name": playerName,
				"position":    map[string]float64{"x": pos.X, "y": pos.Y, "z": pos.Z},
				"dimension":   chunk.NormalizeDimension(b.Player.Dimension),
			})
		}
		s.bcast.Broadcast(protocol.PositionMsg{
			Type: "position", PlayerID: playerID, PlayerName: playerName,
			X: pos.X, Y: pos.Y, Z: pos.Z,
		})

		coord := chunk.Coordinate{
			Dim:    chunk.NormalizeDimension(b.Player.Dimension),
			X:      int32(math.Floor(pos.X / 16)),
			Z:      int32(math.Floor(pos.Z / 16)),
			YSlice: int32(pos.Y),
		}
		s.store.EnsurePresent(s.sender, coord, s.cfg.ChunkRadius)

	case "BlockPlaced", "BlockBroken":
		var pos protocol.Vec3
		if b.Player != nil && b.Player.Position != nil {
			pos = *b.Player.Position
		}
		blockType := "minecraft:unknown"
		if b.Block != nil {
			ns, id := b.Block.Namespace, b.Block.ID
			if ns == "" {
				ns = "minecraft"
			}
			if id == "" {
				id = "unknown"
			}
			blockType = ns + ":" + id
		}
		blockPos := protocol.BlockPos{X: int(pos.X), Y: int(pos.Y), Z: int(pos.Z)}
		msgType, eventType := "block_break", "block_broken"
		if name == "BlockPlaced" {
			// The game reports the player's feet; a placed block sits
			// one above.
			blockPos.Y++
			msgType, eventType = "block_place", "block_placed"
		}
		s.recorder.Record(eventType, map[string]any{
			"player_id":                playerID,
			"player_name":              playerName,
			"block_type":               blockType,
			"player_position":          map[string]float64{"x": pos.X, "y": pos.Y, "z": pos.Z},
			"estimated_block_position": blockPos,
		})
		s.bcast.Broadcast(protocol.BlockMsg{
			Type: msgType, X: pos.X, Y: pos.Y, Z: pos.Z,
			BlockPos: blockPos, BlockType: blockType, PlayerName: playerName,
		})

	case "PlayerMessage":
		s.recorder.Record("player_chat", map[string]any{
			"player_id":    playerID,
			"player_name":  playerName,
			"message":      b.Message,
			"message_type": b.Type,
			"sender":       b.Sender,
		})
		s.bcast.Broadcast(protocol.ChatMsg{
			Type: "player_chat", PlayerID: playerID, PlayerName: playerName, Message: b.Message,
		})

	default:
		if name == "" {
			return
		}
		// Unknown events are recorded generically, never dropped.
		s.recorder.Record(strings.ToLower(name), map[string]any{
			"player_id":   playerID,
			"player_name": playerName,
			"event_data":  b.Raw,
		})
	}
}

func chunkMsg(rec *chunk.Record) protocol.ChunkMsg {
	msg := protocol.ChunkMsg{
		Type:      "chunk",
		Dimension: string(rec.Coord.Dim),
		X:         rec.Coord.X,
		Z:         rec.Coord.Z,
		Pixels:    rec.Pixels,
		Heights:   rec.Heights,
		RequestID: rec.RequestID,
		Timestamp: rec.Timestamp,
	}
	if rec.Coord.YSlice != chunk.AllY {
		y := rec.Coord.YSlice
		msg.Y = &y
	}
	return msg
}
