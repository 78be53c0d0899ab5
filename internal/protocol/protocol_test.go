package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"testing"

	"cocreate/internal/doc"
)

func TestKind(t *testing.T) {
	frame := SyncStep1Frame(doc.StateVector{})
	kind, _, err := Kind(frame)
	if err != nil || kind != MessageSync {
		t.Fatalf("expected sync kind, got %d err=%v", kind, err)
	}
	if _, _, err := Kind(nil); err == nil {
		t.Fatalf("expected error for empty frame")
	}
}

func TestHandleSyncStep1RepliesWithDiff(t *testing.T) {
	replica := doc.NewLog()
	if err := replica.Apply(doc.Update{{Client: 1, Clock: 1, Payload: []byte("a")}}); err != nil {
		t.Fatalf("seed replica: %v", err)
	}

	frame := SyncStep1Frame(doc.StateVector{})
	_, body, _ := Kind(frame)
	res, err := HandleSync(body, replica)
	if err != nil {
		t.Fatalf("handle step1: %v", err)
	}
	if res.Applied {
		t.Fatalf("step1 must not mutate the replica")
	}
	if res.Reply == nil {
		t.Fatalf("step1 must produce a reply")
	}

	kind, replyBody, _ := Kind(res.Reply)
	if kind != MessageSync {
		t.Fatalf("reply is not a sync frame")
	}
	step, rest, _ := readUvarint(replyBody)
	if step != SyncStep2 {
		t.Fatalf("reply step = %d, want step2", step)
	}
	u, _, err := doc.DecodeUpdate(rest)
	if err != nil || len(u) != 1 || !bytes.Equal(u[0].Payload, []byte("a")) {
		t.Fatalf("unexpected reply update: %v err=%v", u, err)
	}
}

func TestHandleSyncStep1UpToDatePeer(t *testing.T) {
	replica := doc.NewLog()
	_ = replica.Apply(doc.Update{{Client: 1, Clock: 1, Payload: []byte("a")}})

	frame := SyncStep1Frame(replica.StateVector())
	_, body, _ := Kind(frame)
	res, err := HandleSync(body, replica)
	if err != nil {
		t.Fatalf("handle step1: %v", err)
	}
	_, replyBody, _ := Kind(res.Reply)
	_, rest, _ := readUvarint(replyBody)
	u, _, _ := doc.DecodeUpdate(rest)
	if len(u) != 0 {
		t.Fatalf("up-to-date peer should get an empty update, got %v", u)
	}
}

func TestHandleSyncUpdateApplies(t *testing.T) {
	replica := doc.NewLog()
	frame := SyncUpdateFrame(doc.Update{{Client: 2, Clock: 1, Payload: []byte("x")}})
	_, body, _ := Kind(frame)
	res, err := HandleSync(body, replica)
	if err != nil {
		t.Fatalf("handle update: %v", err)
	}
	if !res.Applied || res.Reply != nil {
		t.Fatalf("update should apply without reply, got %+v", res)
	}
	if replica.StateVector()[2] != 1 {
		t.Fatalf("update not integrated")
	}
}

func TestHandleSyncStep2Applies(t *testing.T) {
	replica := doc.NewLog()
	frame := SyncStep2Frame(doc.Update{{Client: 3, Clock: 1, Payload: []byte("y")}})
	_, body, _ := Kind(frame)
	res, err := HandleSync(body, replica)
	if err != nil || !res.Applied {
		t.Fatalf("step2 should apply, res=%+v err=%v", res, err)
	}
}

func TestHandleSyncRejectsGarbage(t *testing.T) {
	replica := doc.NewLog()
	if _, err := HandleSync(nil, replica); err == nil {
		t.Fatalf("expected error for empty body")
	}
	if _, err := HandleSync([]byte{9}, replica); err == nil {
		t.Fatalf("expected error for unknown step")
	}
	// Valid step marker, truncated payload.
	if _, err := HandleSync([]byte{SyncUpdate, 0x05}, replica); err == nil {
		t.Fatalf("expected error for truncated update")
	}
}

func TestPresenceCodec(t *testing.T) {
	entries := []PresenceEntry{
		{Client: 1, Clock: 5, Value: []byte(`{"name":"A"}`)},
		{Client: 2, Clock: 1}, // tombstone
	}
	frame := PresenceFrame(entries)
	kind, body, err := Kind(frame)
	if err != nil || kind != MessagePresence {
		t.Fatalf("bad frame header: kind=%d err=%v", kind, err)
	}
	got, err := DecodePresence(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Client != 1 || got[0].Clock != 5 || !bytes.Equal(got[0].Value, entries[0].Value) {
		t.Fatalf("entry 0 mismatch: %+v", got[0])
	}
	if got[1].Client != 2 || got[1].Value != nil {
		t.Fatalf("tombstone mismatch: %+v", got[1])
	}
}

func TestDecodePresenceTruncated(t *testing.T) {
	frame := PresenceFrame([]PresenceEntry{{Client: 1, Clock: 1, Value: []byte("abc")}})
	_, body, _ := Kind(frame)
	for cut := 0; cut < len(body); cut++ {
		if _, err := DecodePresence(body[:cut]); err == nil && cut > 0 {
			t.Fatalf("expected error decoding %d-byte prefix", cut)
		}
	}
}

func TestDecodePresenceOversizedCount(t *testing.T) {
	// A short body claiming an enormous entry count must fail the
	// decode, not size an allocation from the claimed count.
	for _, count := range []uint64{1 << 61, 1 << 28, 10} {
		body := binary.AppendUvarint(nil, count)
		if _, err := DecodePresence(body); err == nil {
			t.Fatalf("expected error decoding presence claiming %d entries", count)
		}
	}
}

func TestHandleSyncOversizedCount(t *testing.T) {
	replica := doc.NewLog()
	body := binary.AppendUvarint([]byte{SyncUpdate}, 1<<61)
	if _, err := HandleSync(body, replica); err == nil {
		t.Fatalf("expected error for update claiming 1<<61 ops")
	}
}

func TestRoomFullMessage(t *testing.T) {
	var msg RoomFull
	if err := json.Unmarshal(RoomFullMessage(2), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "room_full" || msg.MaxParticipants != 2 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}
