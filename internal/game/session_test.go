package game

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/juedwards/minecraft-assessment-server/internal/chunk"
	"github.com/juedwards/minecraft-assessment-server/internal/config"
	"github.com/juedwards/minecraft-assessment-server/internal/protocol"
	"github.com/juedwards/minecraft-assessment-server/internal/session"
)

type fakeSender struct {
	sent []any
}

func (f *fakeSender) Send(v any) error {
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeSender) chunkRequests() []protocol.CommandRequest {
	var out []protocol.CommandRequest
	for _, v := range f.sent {
		if cmd, ok := v.(protocol.CommandRequest); ok && strings.HasPrefix(cmd.Body.CommandLine, "getchunkdata ") {
			out = append(out, cmd)
		}
	}
	return out
}

type fakeBroadcast struct {
	msgs []any
}

func (f *fakeBroadcast) Broadcast(v any) { f.msgs = append(f.msgs, v) }

func (f *fakeBroadcast) ofType(typ string) []any {
	var out []any
	for _, m := range f.msgs {
		b, _ := json.Marshal(m)
		var probe struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(b, &probe)
		if probe.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func newTestSession(t *testing.T) (*Session, *fakeSender, *fakeBroadcast, *session.Recorder) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	tracker := chunk.NewTracker()
	store := chunk.NewStore(tracker, 0, logger, nil)
	recorder := session.NewRecorder(t.TempDir(), nil, logger)
	sender := &fakeSender{}
	bcast := &fakeBroadcast{}
	cfg := config.Defaults()
	sess := NewSession(sender, store, NewRegistry(), recorder, bcast, cfg, logger)
	return sess, sender, bcast, recorder
}

func snapshotFrame(id, name string, x, y, z float64) []byte {
	return []byte(fmt.Sprintf(
		`{"header":{},"body":{"player":{"id":%q,"name":%q,"position":{"x":%g,"y":%g,"z":%g}}}}`,
		id, name, x, y, z))
}

func travelledFrame(id, name string, x, y, z float64) []byte {
	return []byte(fmt.Sprintf(
		`{"header":{"messagePurpose":"event","eventName":"PlayerTravelled"},"body":{"player":{"id":%q,"name":%q,"dimension":"overworld","position":{"x":%g,"y":%g,"z":%g}}}}`,
		id, name, x, y, z))
}

func TestSession_IdentifyStartsSession(t *testing.T) {
	sess, sender, bcast, recorder := newTestSession(t)

	sess.Dispatch(snapshotFrame("p1", "Alex", 10, 70, 20))

	if _, active := recorder.Active(); !active {
		t.Fatalf("first identified player should start a session")
	}
	if got := bcast.ofType("session_info"); len(got) != 1 {
		t.Fatalf("session_info broadcasts = %d, want 1", len(got))
	}
	if got := bcast.ofType("position"); len(got) != 1 {
		t.Fatalf("initial position broadcasts = %d, want 1", len(got))
	}
	if got := bcast.ofType("active_players"); len(got) != 1 {
		t.Fatalf("active_players broadcasts = %d, want 1", len(got))
	}

	welcomed := false
	for _, v := range sender.sent {
		if cmd, ok := v.(protocol.CommandRequest); ok && strings.HasPrefix(cmd.Body.CommandLine, "tellraw ") {
			welcomed = true
		}
	}
	if !welcomed {
		t.Fatalf("welcome banner not sent")
	}

	// A second snapshot must not start another session.
	before, _ := recorder.Active()
	sess.Dispatch(snapshotFrame("p1", "Alex", 10, 70, 20))
	after, _ := recorder.Active()
	if before.ID != after.ID {
		t.Fatalf("session restarted on repeat snapshot")
	}
	recorder.End()
}

func TestSession_TravelledRequestsSurroundingChunks(t *testing.T) {
	sess, sender, bcast, recorder := newTestSession(t)
	defer recorder.End()

	sess.Dispatch(travelledFrame("p1", "Alex", 35.2, 70.5, -20.1))

	reqs := sender.chunkRequests()
	if len(reqs) != 9 {
		t.Fatalf("issued %d chunk requests, want 9 (radius 1)", len(reqs))
	}
	// floor(35.2/16)=2, floor(-20.1/16)=-2, y slice 70: the center chunk
	// command must be present.
	want := "getchunkdata overworld 2 -2 70"
	found := false
	for _, cmd := range reqs {
		if cmd.Body.CommandLine == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("center chunk command %q missing from %d requests", want, len(reqs))
	}
	if got := bcast.ofType("position"); len(got) < 1 {
		t.Fatalf("travelled event must broadcast a live position")
	}

	// Travelling again inside the same chunk issues nothing new.
	sess.Dispatch(travelledFrame("p1", "Alex", 36.0, 70.9, -21.0))
	if got := sender.chunkRequests(); len(got) != 9 {
		t.Fatalf("duplicate requests issued: %d", len(got))
	}
}

func TestSession_ChunkResponseRoundTrip(t *testing.T) {
	sess, sender, bcast, recorder := newTestSession(t)
	defer recorder.End()

	sess.Dispatch(travelledFrame("p1", "Alex", 0, 64, 0))
	reqs := sender.chunkRequests()
	if len(reqs) == 0 {
		t.Fatalf("no chunk requests issued")
	}

	heights := make([]uint8, chunk.Columns)
	pixels := make([]uint32, chunk.Columns)
	for i := range pixels {
		heights[i] = 64
		pixels[i] = 0xFF336699
	}
	payload, err := chunk.Encode(heights, pixels)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	frame := fmt.Sprintf(
		`{"header":{"requestId":%q,"messagePurpose":"commandResponse"},"body":{"data":%q}}`,
		reqs[0].Header.RequestID, payload)
	sess.Dispatch([]byte(frame))

	msgs := bcast.ofType("chunk")
	if len(msgs) != 1 {
		t.Fatalf("chunk broadcasts = %d, want 1", len(msgs))
	}
	cm, ok := msgs[0].(protocol.ChunkMsg)
	if !ok {
		t.Fatalf("broadcast %T, want protocol.ChunkMsg", msgs[0])
	}
	if len(cm.Pixels) != 256 || len(cm.Heights) != 256 {
		t.Fatalf("broadcast arrays %d/%d, want 256/256", len(cm.Pixels), len(cm.Heights))
	}
	if cm.Pixels[0] != 0xFF336699 {
		t.Fatalf("pixels[0] = %#x", cm.Pixels[0])
	}
	if cm.RequestID != reqs[0].Header.RequestID {
		t.Fatalf("requestId = %q, want %q", cm.RequestID, reqs[0].Header.RequestID)
	}
}

func TestSession_MalformedResponseKeepsConnection(t *testing.T) {
	sess, sender, bcast, recorder := newTestSession(t)
	defer recorder.End()

	sess.Dispatch(travelledFrame("p1", "Alex", 0, 64, 0))
	reqs := sender.chunkRequests()

	frame := fmt.Sprintf(
		`{"header":{"requestId":%q,"messagePurpose":"commandResponse"},"body":{"data":"AAAAAA*100"}}`,
		reqs[0].Header.RequestID)
	sess.Dispatch([]byte(frame))
	sess.Dispatch([]byte(`not json at all`))

	if got := bcast.ofType("chunk"); len(got) != 0 {
		t.Fatalf("malformed payload broadcast a chunk")
	}
	// The dispatcher is still alive and handles further frames.
	sess.Dispatch(travelledFrame("p1", "Alex", 500, 64, 500))
	if got := bcast.ofType("position"); len(got) < 2 {
		t.Fatalf("dispatcher stopped after malformed frame")
	}
}

func TestSession_BlockEvents(t *testing.T) {
	sess, _, bcast, recorder := newTestSession(t)
	defer recorder.End()

	placed := `{"header":{"messagePurpose":"event","eventName":"BlockPlaced"},"body":{"player":{"id":"p1","name":"Alex","position":{"x":5,"y":64,"z":9}},"block":{"id":"stone","namespace":"minecraft"}}}`
	sess.Dispatch([]byte(placed))

	msgs := bcast.ofType("block_place")
	if len(msgs) != 1 {
		t.Fatalf("block_place broadcasts = %d, want 1", len(msgs))
	}
	bm := msgs[0].(protocol.BlockMsg)
	if bm.BlockType != "minecraft:stone" {
		t.Fatalf("blockType = %q", bm.BlockType)
	}
	if bm.BlockPos.Y != 65 {
		t.Fatalf("placed block y = %d, want player y + 1", bm.BlockPos.Y)
	}

	broken := `{"header":{"messagePurpose":"event","eventName":"BlockBroken"},"body":{"player":{"id":"p1","name":"Alex","position":{"x":5,"y":64,"z":9}},"block":{"id":"dirt","namespace":"minecraft"}}}`
	sess.Dispatch([]byte(broken))
	msgs = bcast.ofType("block_break")
	if len(msgs) != 1 {
		t.Fatalf("block_break broadcasts = %d, want 1", len(msgs))
	}
	if msgs[0].(protocol.BlockMsg).BlockPos.Y != 64 {
		t.Fatalf("broken block y should not be offset")
	}
}

func TestSession_ChatForwarded(t *testing.T) {
	sess, _, bcast, recorder := newTestSession(t)
	defer recorder.End()

	chat := `{"header":{"messagePurpose":"event","eventName":"PlayerMessage"},"body":{"player":{"id":"p1","name":"Alex"},"message":"hello class","sender":"Alex","type":"chat"}}`
	sess.Dispatch([]byte(chat))

	msgs := bcast.ofType("player_chat")
	if len(msgs) != 1 {
		t.Fatalf("player_chat broadcasts = %d, want 1", len(msgs))
	}
	if msgs[0].(protocol.ChatMsg).Message != "hello class" {
		t.Fatalf("message = %q", msgs[0].(protocol.ChatMsg).Message)
	}
}

func TestSession_UnknownEventRecordedNotBroadcast(t *testing.T) {
	sess, _, bcast, recorder := newTestSession(t)

	sess.Dispatch(snapshotFrame("p1", "Alex", 0, 64, 0))
	before := recorder.EventCount()
	sess.Dispatch([]byte(`{"header":{"messagePurpose":"event","eventName":"PlayerSneak"},"body":{"player":{"id":"p1","name":"Alex"}}}`))
	if recorder.EventCount() != before+1 {
		t.Fatalf("unrecognized event not recorded")
	}
	if len(bcast.ofType("playersneak")) != 0 {
		t.Fatalf("unrecognized event should not broadcast")
	}
	recorder.End()
}

func TestSession_PositionRecordThrottle(t *testing.T) {
	sess, _, _, recorder := newTestSession(t)

	sess.Dispatch(snapshotFrame("p1", "Alex", 0, 64, 0))
	before := recorder.EventCount()
	for i := 0; i < 10; i++ {
		sess.Dispatch(travelledFrame("p1", "Alex", float64(i), 64, 0))
	}
	// Defaults record every 10th travelled event.
	if got := recorder.EventCount() - before; got != 1 {
		t.Fatalf("recorded %d position events across 10 travels, want 1", got)
	}
	recorder.End()
}

func TestSession_CloseEndsSessionForLastPlayer(t *testing.T) {
	sess, _, bcast, recorder := newTestSession(t)

	sess.Dispatch(snapshotFrame("p1", "Alex", 0, 64, 0))
	sess.Close()

	if len(bcast.ofType("disconnect")) != 1 {
		t.Fatalf("disconnect not broadcast")
	}
	if _, active := recorder.Active(); active {
		t.Fatalf("session should end when the last player leaves")
	}
}
