package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// CommandRequest is an outbound command envelope for the game socket.
type CommandRequest struct {
	Header Header             `json:"header"`
	Body   CommandRequestBody `json:"body"`
}

type CommandRequestBody struct {
	Origin      *Origin `json:"origin,omitempty"`
	CommandLine string  `json:"commandLine"`
	Version     int     `json:"version,omitempty"`
}

type Origin struct {
	Type string `json:"type"`
}

// NewCommandRequest wraps a command line in a commandRequest envelope under
// the given requestId (a fresh UUID when empty).
func NewCommandRequest(requestID, commandLine string) CommandRequest {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return CommandRequest{
		Header: Header{
			Version:        1,
			RequestID:      requestID,
			MessageType:    PurposeCommandRequest,
			MessagePurpose: PurposeCommandRequest,
		},
		Body: CommandRequestBody{CommandLine: commandLine},
	}
}

// NewPlayerCommand is NewCommandRequest with a player origin and body
// version, the shape the game expects for tellraw and other chat-visible
// commands.
func NewPlayerCommand(commandLine string) CommandRequest {
	cmd := NewCommandRequest("", commandLine)
	cmd.Body.Origin = &Origin{Type: "player"}
	cmd.Body.Version = 1
	return cmd
}

// SubscribeRequest registers interest in one gameplay event name.
type SubscribeRequest struct {
	Header Header        `json:"header"`
	Body   SubscribeBody `json:"body"`
}

type SubscribeBody struct {
	EventName string `json:"eventName"`
}

func NewSubscribe(eventName string) SubscribeRequest {
	return SubscribeRequest{
		Header: Header{
			Version:        1,
			RequestID:      uuid.NewString(),
			MessageType:    PurposeCommandRequest,
			MessagePurpose: PurposeSubscribe,
		},
		Body: SubscribeBody{EventName: eventName},
	}
}

// Tellraw builds a tellraw @a command carrying raw formatted text.
func Tellraw(text string) CommandRequest {
	return NewPlayerCommand(fmt.Sprintf(`tellraw @a {"rawtext":[{"text":"%s"}]}`, text))
}

// StatusMessage is the free-text frame shown to a game client right after
// it connects.
type StatusMessage struct {
	Header Header     `json:"header"`
	Body   StatusBody `json:"body"`
}

type StatusBody struct {
	StatusMessage string `json:"statusMessage"`
}

func NewStatusMessage(text string) StatusMessage {
	return StatusMessage{
		Header: Header{MessagePurpose: PurposeCommandResponse},
		Body:   StatusBody{StatusMessage: text},
	}
}

// Broadcast messages for viewer clients. The chunk message's pixels and
// heights arrays are the codec output verbatim; renderers depend on that.

type ChunkMsg struct {
	Type      string   `json:"type"` // "chunk"
	Dimension string   `json:"dimension"`
	X         int32    `json:"x"`
	Z         int32    `json:"z"`
	Y         *int32   `json:"y"`
	Pixels    []uint32 `json:"pixels"`
	Heights   []uint8  `json:"heights"`
	RequestID string   `json:"requestId"`
	Timestamp float64  `json:"timestamp"`
}

type PositionMsg struct {
	Type       string  `json:"type"` // "position"
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
}

type BlockMsg struct {
	Type       string   `json:"type"` // "block_place" | "block_break"
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Z          float64  `json:"z"`
	BlockPos   BlockPos `json:"blockPos"`
	BlockType  string   `json:"blockType"`
	PlayerName string   `json:"playerName"`
}

type BlockPos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

type ChatMsg struct {
	Type       string `json:"type"` // "player_chat"
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

type SessionInfoMsg struct {
	Type      string `json:"type"` // "session_info" | "session_cleared"
	SessionID string `json:"sessionId"`
	StartTime string `json:"startTime"`
	FileName  string `json:"fileName"`
}

type ActivePlayersMsg struct {
	Type    string        `json:"type"` // "active_players"
	Players []PlayerEntry `json:"players"`
}

type PlayerEntry struct {
	PlayerID   string   `json:"playerId"`
	PlayerName string   `json:"playerName"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	Z          *float64 `json:"z,omitempty"`
}

type DisconnectMsg struct {
	Type     string `json:"type"` // "disconnect"
	PlayerID string `json:"playerId"`
}

type ErrorMsg struct {
	Type  string `json:"type"` // "error"
	Error string `json:"error"`
}
