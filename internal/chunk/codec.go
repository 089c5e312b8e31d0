package chunk

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Columns is the number of columns in one chunk (16x16).
const Columns = 256

// DecodeError reports a structurally invalid getchunkdata payload. Decoding
// is all-or-nothing: a DecodeError means no partial arrays were produced.
type DecodeError struct {
	Pos    int    // logical column index where decoding stopped
	Token  string // offending token, if any
	Reason string
}

func (e *DecodeError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("chunk decode: %s (token %q at column %d)", e.Reason, e.Token, e.Pos)
	}
	return fmt.Sprintf("chunk decode: %s (at column %d)", e.Reason, e.Pos)
}

// Decode parses the compact getchunkdata token stream into per-column heights
// and packed ARGB pixels, each exactly 256 long.
//
// The stream is comma-separated. A token is either a 6-char padless base64
// group decoding to a little-endian uint32, or a decimal back-reference to
// the value decoded at an earlier logical column index. Either form may carry
// a "*N" suffix emitting the value N additional times. The high byte of each
// value is the column height; the low 24 bits are the color, with alpha
// forced opaque.
func Decode(payload string) (heights []uint8, pixels []uint32, err error) {
	s := strings.TrimSpace(payload)
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil, nil, &DecodeError{Reason: "empty payload"}
	}

	// Every emitted column records its value here so back-references can
	// target positions inside an expanded run as well.
	resolved := make([]uint32, 0, Columns)
	heights = make([]uint8, 0, Columns)
	pixels = make([]uint32, 0, Columns)

	for _, elem := range strings.Split(s, ",") {
		if elem == "" {
			continue
		}
		token, repeats, derr := splitRepeat(elem)
		if derr != nil {
			derr.Pos = len(resolved)
			return nil, nil, derr
		}

		var value uint32
		if len(token) == 6 {
			raw, err := base64.StdEncoding.DecodeString(token + "==")
			if err != nil {
				return nil, nil, &DecodeError{Pos: len(resolved), Token: token, Reason: "invalid base64 token"}
			}
			if len(raw) != 4 {
				return nil, nil, &DecodeError{Pos: len(resolved), Token: token, Reason: fmt.Sprintf("base64 token decoded to %d bytes, want 4", len(raw))}
			}
			value = binary.LittleEndian.Uint32(raw)
		} else {
			ref, err := strconv.Atoi(token)
			if err != nil {
				return nil, nil, &DecodeError{Pos: len(resolved), Token: token, Reason: "not a base64 group or back-reference"}
			}
			if ref < 0 || ref >= len(resolved) {
				return nil, nil, &DecodeError{Pos: len(resolved), Token: token, Reason: fmt.Sprintf("back-reference to unresolved index %d", ref)}
			}
			value = resolved[ref]
		}

		height := uint8(value >> 24)
		argb := (value & 0x00FFFFFF) | 0xFF000000
		for i := 0; i <= repeats; i++ {
			if len(resolved) >= Columns {
				return nil, nil, &DecodeError{Pos: len(resolved), Token: token, Reason: "payload expands past 256 columns"}
			}
			resolved = append(resolved, value)
			heights = append(heights, height)
			pixels = append(pixels, argb)
		}
	}

	if len(resolved) != Columns {
		return nil, nil, &DecodeError{Pos: len(resolved), Reason: fmt.Sprintf("payload expands to %d columns, want 256", len(resolved))}
	}
	return heights, pixels, nil
}

func splitRepeat(elem string) (token string, repeats int, err *DecodeError) {
	token, suffix, found := strings.Cut(elem, "*")
	if token == "" {
		return "", 0, &DecodeError{Token: elem, Reason: "empty token"}
	}
	if !found {
		return token, 0, nil
	}
	n, cerr := strconv.Atoi(suffix)
	if cerr != nil || n < 0 {
		return "", 0, &DecodeError{Token: elem, Reason: "invalid repeat count"}
	}
	return token, n, nil
}

// Encode produces a payload that Decode round-trips to the given arrays.
// Consecutive repeats collapse into "*N" runs and previously seen values are
// emitted as back-references to their first column index.
func Encode(heights []uint8, pixels []uint32) (string, error) {
	if len(heights) != Columns || len(pixels) != Columns {
		return "", fmt.Errorf("chunk encode: need %d heights and pixels, got %d/%d", Columns, len(heights), len(pixels))
	}

	values := make([]uint32, Columns)
	for i := range values {
		values[i] = uint32(heights[i])<<24 | pixels[i]&0x00FFFFFF
	}

	firstIndex := make(map[uint32]int, Columns)
	var b strings.Builder
	for i := 0; i < Columns; {
		v := values[i]
		run := 1
		for i+run < Columns && values[i+run] == v {
			run++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if first, ok := firstIndex[v]; ok {
			b.WriteString(strconv.Itoa(first))
		} else {
			firstIndex[v] = i
			var raw [4]byte
			binary.LittleEndian.PutUint32(raw[:], v)
			b.WriteString(base64.StdEncoding.EncodeToString(raw[:])[:6])
		}
		if run > 1 {
			b.WriteByte('*')
			b.WriteString(strconv.Itoa(run - 1))
		}
		i += run
	}
	return b.String(), nil
}
