package session

import "cocreate/internal/protocol"

type presenceState struct {
	value []byte // nil marks a tombstone; clock is still tracked
	clock uint64
}

// Table is a room's ephemeral presence map: client id -> metadata
// blob with a last-writer-wins clock. Tombstoned entries keep their
// clock so a stale update cannot resurrect them. Not safe for
// concurrent use; the owning room serializes access.
type Table struct {
	states map[uint64]presenceState
}

func NewTable() *Table {
	return &Table{states: make(map[uint64]presenceState)}
}

// Apply merges entries under last-writer-wins (higher clock wins) and
// returns the entries that won, in input order. An empty value is a
// tombstone and removes the live entry.
func (t *Table) Apply(entries []protocol.PresenceEntry) []protocol.PresenceEntry {
	var won []protocol.PresenceEntry
	for _, e := range entries {
		cur, ok := t.states[e.Client]
		if ok && e.Clock <= cur.clock {
			continue
		}
		t.states[e.Client] = presenceState{value: e.Value, clock: e.Clock}
		won = append(won, e)
	}
	return won
}

// Remove tombstones a client's entry, returning the tombstone to
// broadcast. ok is false when the client had no live entry.
func (t *Table) Remove(client uint64) (protocol.PresenceEntry, bool) {
	cur, ok := t.states[client]
	if !ok || cur.value == nil {
		return protocol.PresenceEntry{}, false
	}
	tomb := protocol.PresenceEntry{Client: client, Clock: cur.clock + 1}
	t.states[client] = presenceState{clock: tomb.Clock}
	return tomb, true
}

// Snapshot returns all live entries.
func (t *Table) Snapshot() []protocol.PresenceEntry {
	var out []protocol.PresenceEntry
	for client, st := range t.states {
		if st.value == nil {
			continue
		}
		out = append(out, protocol.PresenceEntry{Client: client, Clock: st.clock, Value: st.value})
	}
	return out
}

// Len reports the number of live entries.
func (t *Table) Len() int {
	n := 0
	for _, st := range t.states {
		if st.value != nil {
			n++
		}
	}
	return n
}
