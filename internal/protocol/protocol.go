// Package protocol defines the binary wire frames exchanged with
// clients. A frame's first varint selects the message kind; sync
// frames nest a second varint selecting the sync step.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"cocreate/internal/doc"
)

// Message kinds.
const (
	MessageSync     = 0
	MessagePresence = 1
)

// Sync steps.
const (
	SyncStep1  = 0 // carries the sender's state vector, expects a step2 reply
	SyncStep2  = 1 // carries an update answering a step1
	SyncUpdate = 2 // carries an incremental update
)

var (
	ErrUnknownMessage = errors.New("unknown message kind")
	errUnknownStep    = errors.New("unknown sync step")
	errTruncated      = errors.New("truncated frame")
)

// Kind reads a frame's message kind and returns the rest of the frame.
func Kind(frame []byte) (uint64, []byte, error) {
	kind, n := binary.Uvarint(frame)
	if n <= 0 {
		return 0, nil, errTruncated
	}
	return kind, frame[n:], nil
}

// SyncStep1Frame builds a full frame offering sv to the peer.
func SyncStep1Frame(sv doc.StateVector) []byte {
	buf := binary.AppendUvarint(nil, MessageSync)
	buf = binary.AppendUvarint(buf, SyncStep1)
	return doc.EncodeStateVector(buf, sv)
}

// SyncStep2Frame builds a full frame carrying u as a step1 answer.
func SyncStep2Frame(u doc.Update) []byte {
	buf := binary.AppendUvarint(nil, MessageSync)
	buf = binary.AppendUvarint(buf, SyncStep2)
	return doc.EncodeUpdate(buf, u)
}

// SyncUpdateFrame builds a full frame carrying an incremental update.
func SyncUpdateFrame(u doc.Update) []byte {
	buf := binary.AppendUvarint(nil, MessageSync)
	buf = binary.AppendUvarint(buf, SyncUpdate)
	return doc.EncodeUpdate(buf, u)
}

// SyncResult reports what HandleSync did with a sync frame.
type SyncResult struct {
	// Reply, if non-nil, is a frame for the sender only.
	Reply []byte
	// Applied reports whether the frame mutated the replica, which
	// is what decides whether the frame is fanned out to peers.
	Applied bool
}

// HandleSync dispatches the body of a MessageSync frame against a
// replica. Step1 answers with the catch-up diff; step2 and update
// merge into the replica.
func HandleSync(body []byte, replica doc.Replica) (SyncResult, error) {
	step, rest, err := readUvarint(body)
	if err != nil {
		return SyncResult{}, err
	}
	switch step {
	case SyncStep1:
		remote, _, err := doc.DecodeStateVector(rest)
		if err != nil {
			return SyncResult{}, fmt.Errorf("sync step1: %w", err)
		}
		return SyncResult{Reply: SyncStep2Frame(replica.Diff(remote))}, nil
	case SyncStep2, SyncUpdate:
		u, _, err := doc.DecodeUpdate(rest)
		if err != nil {
			return SyncResult{}, fmt.Errorf("sync update: %w", err)
		}
		if err := replica.Apply(u); err != nil {
			return SyncResult{}, err
		}
		return SyncResult{Applied: true}, nil
	default:
		return SyncResult{}, errUnknownStep
	}
}

// PresenceEntry is one client's presence record on the wire. An empty
// Value is a tombstone.
type PresenceEntry struct {
	Client uint64
	Clock  uint64
	Value  []byte
}

// PresenceFrame builds a full frame carrying entries.
func PresenceFrame(entries []PresenceEntry) []byte {
	buf := binary.AppendUvarint(nil, MessagePresence)
	buf = binary.AppendUvarint(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = binary.AppendUvarint(buf, e.Client)
		buf = binary.AppendUvarint(buf, e.Clock)
		buf = binary.AppendUvarint(buf, uint64(len(e.Value)))
		buf = append(buf, e.Value...)
	}
	return buf
}

// DecodePresence parses the body of a MessagePresence frame.
func DecodePresence(body []byte) ([]PresenceEntry, error) {
	count, b, err := readUvarint(body)
	if err != nil {
		return nil, err
	}
	// Three varints per entry means at least three bytes each.
	if count > uint64(len(b))/3 {
		return nil, errTruncated
	}
	entries := make([]PresenceEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		var e PresenceEntry
		if e.Client, b, err = readUvarint(b); err != nil {
			return nil, err
		}
		if e.Clock, b, err = readUvarint(b); err != nil {
			return nil, err
		}
		var n uint64
		if n, b, err = readUvarint(b); err != nil {
			return nil, err
		}
		if uint64(len(b)) < n {
			return nil, errTruncated
		}
		if n > 0 {
			e.Value = append([]byte(nil), b[:n]...)
		}
		b = b[n:]
		entries = append(entries, e)
	}
	return entries, nil
}

// RoomFull is the out-of-band rejection sent before closing a
// connection that failed admission.
type RoomFull struct {
	Type            string `json:"type"`
	Message         string `json:"message"`
	MaxParticipants int    `json:"maxParticipants"`
}

// RoomFullMessage renders the capacity rejection as JSON.
func RoomFullMessage(max int) []byte {
	b, _ := json.Marshal(RoomFull{
		Type:            "room_full",
		Message:         "Room has reached maximum capacity",
		MaxParticipants: max,
	})
	return b
}

func readUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, errTruncated
	}
	return v, b[n:], nil
}
