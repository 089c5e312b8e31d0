package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FlexString decodes a JSON string or number into a string. Player ids and
// dimensions arrive as either depending on the game build.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player is the normalized body.player object of event and snapshot frames.
type Player struct {
	ID        FlexString `json:"id"`
	Name      string     `json:"name"`
	Position  *Vec3      `json:"position,omitempty"`
	Dimension any        `json:"dimension,omitempty"`
}

type Block struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace"`
}

// EventBody covers the event-specific fields this system consumes. Unknown
// fields are preserved in Raw for generic recording.
type EventBody struct {
	Player  *Player `json:"player,omitempty"`
	Block   *Block  `json:"block,omitempty"`
	Message string  `json:"message,omitempty"`
	Sender  string  `json:"sender,omitempty"`
	Type    string  `json:"type,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// ParseEventBody decodes an event or snapshot frame body.
func ParseEventBody(raw json.RawMessage) (EventBody, error) {
	var b EventBody
	if err := json.Unmarshal(raw, &b); err != nil {
		return EventBody{}, err
	}
	b.Raw = raw
	return b, nil
}

// ChunkResponseBody is the normalized commandResponse body for getchunkdata.
// Coordinate fields are optional; when absent the caller resolves them from
// the request tracker by requestId.
type ChunkResponseBody struct {
	Data      string
	Dimension any    // string name or numeric id; nil when absent
	X, Z, Y   *int32 // nil when absent
}

// ParseChunkResponseBody folds the coordinate aliases seen in the wild
// (x/chunkX/position.x and friends) into one canonical struct.
func ParseChunkResponseBody(raw json.RawMessage) (ChunkResponseBody, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return ChunkResponseBody{}, false
	}
	data, ok := m["data"].(string)
	if !ok {
		return ChunkResponseBody{}, false
	}

	out := ChunkResponseBody{Data: data}
	for _, k := range []string{"dimension", "world", "dimensionName"} {
		if v, ok := m[k]; ok && v != nil {
			out.Dimension = v
			break
		}
	}
	pos, _ := m["position"].(map[string]any)
	out.X = pickInt(m, pos, "x", "chunkX")
	out.Z = pickInt(m, pos, "z", "chunkZ")
	out.Y = pickInt(m, pos, "y", "chunkY")
	return out, true
}

// pickInt reads the first of body[flat], body[alias], pos[flat] that parses
// as an integer.
func pickInt(body, pos map[string]any, flat, alias string) *int32 {
	for _, v := range []any{body[flat], body[alias], valueOf(pos, flat)} {
		if n, ok := asInt32(v); ok {
			return &n
		}
	}
	return nil
}

func valueOf(m map[string]any, k string) any {
	if m == nil {
		return nil
	}
	return m[k]
}

func asInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case float64:
		return int32(n), true
	case string:
		i, err := strconv.ParseInt(n, 10, 32)
		if err != nil {
			return 0, false
		}
		return int32(i), true
	default:
		return 0, false
	}
}
