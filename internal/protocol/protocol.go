// Package protocol holds the wire shapes for both sockets: the Education
// Edition commandRequest/commandResponse/event envelopes on the game side
// and the simplified broadcast messages on the viewer side. It normalizes
// the game's loosely-typed frames into canonical structs before anything
// else sees them.
package protocol

import "encoding/json"

// Message purposes seen in frame headers.
const (
	PurposeCommandRequest  = "commandRequest"
	PurposeCommandResponse = "commandResponse"
	PurposeCommandResult   = "commandResult"
	PurposeSubscribe       = "subscribe"
	PurposeEvent           = "event"
)

// Header is the common frame header on the game socket.
type Header struct {
	Version        int    `json:"version,omitempty"`
	RequestID      string `json:"requestId,omitempty"`
	MessageType    string `json:"messageType,omitempty"`
	MessagePurpose string `json:"messagePurpose,omitempty"`
	EventName      string `json:"eventName,omitempty"`
}

// Frame is one inbound game-socket message with the body left raw; the
// dispatcher decodes the body per classification.
type Frame struct {
	Header Header          `json:"header"`
	Body   json.RawMessage `json:"body"`
}

// DecodeFrame parses one raw game-socket message.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(b, &f)
	return f, err
}

// IsCommandResponse reports whether the frame header marks a command
// response. Some game builds use commandResult or set messageType instead
// of messagePurpose.
func (f Frame) IsCommandResponse() bool {
	switch f.Header.MessagePurpose {
	case PurposeCommandResponse, PurposeCommandResult:
		return true
	}
	return f.Header.MessageType == PurposeCommandResponse
}

// IsEvent reports whether the frame is a subscribed gameplay event.
func (f Frame) IsEvent() bool {
	return f.Header.MessagePurpose == PurposeEvent
}
