package session

import (
	"errors"
	"sync"

	"cocreate/internal/doc"
	"cocreate/internal/protocol"
)

var (
	// ErrRoomFull means admission failed on the capacity gate.
	ErrRoomFull = errors.New("room full")
	// ErrRoomClosed means the room was torn down between lookup and
	// join; callers retry against a fresh room.
	ErrRoomClosed = errors.New("room closed")
)

// Room holds one synchronization domain: the replicated document, the
// presence table, and the set of admitted connections. One mutex
// serializes all of it; rooms never share locks.
type Room struct {
	ID string

	mu       sync.Mutex
	closed   bool
	clients  map[*Client]struct{}
	replica  doc.Replica
	presence *Table
	capacity int
}

func NewRoom(id string, capacity int) *Room {
	return &Room{
		ID:       id,
		clients:  make(map[*Client]struct{}),
		replica:  doc.NewLog(),
		presence: NewTable(),
		capacity: capacity,
	}
}

// Join admits a client. The capacity check and the registration are
// one atomic step so concurrent admissions cannot overshoot.
func (r *Room) Join(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if len(r.clients) >= r.capacity {
		return ErrRoomFull
	}
	r.clients[c] = struct{}{}
	return nil
}

// Leave removes a client and reports how many remain. Removing a
// client that already left is a no-op returning the current count.
func (r *Room) Leave(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c)
	return len(r.clients)
}

func (r *Room) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// HandleSync runs a sync frame body against the room's replica.
func (r *Room) HandleSync(body []byte) (protocol.SyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return protocol.HandleSync(body, r.replica)
}

// InitialOffering is the document state sent to a fresh join: the
// full document, as a diff against the empty state vector.
func (r *Room) InitialOffering() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return protocol.SyncStep2Frame(r.replica.Diff(doc.StateVector{}))
}

// PresenceSnapshot returns a frame with all live presence entries, or
// nil when the table is empty.
func (r *Room) PresenceSnapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.presence.Snapshot()
	if len(entries) == 0 {
		return nil
	}
	return protocol.PresenceFrame(entries)
}

// ApplyPresence merges entries from c into the table and returns the
// winners, recording c as the owner of the entries it asserted.
func (r *Room) ApplyPresence(c *Client, entries []protocol.PresenceEntry) []protocol.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	won := r.presence.Apply(entries)
	for _, e := range won {
		// Ownership follows the winning write. Releasing other
		// sessions' claims keeps a departing session from tombstoning
		// an entry a live peer last asserted.
		for peer := range r.clients {
			if peer != c {
				peer.dropPresence(e.Client)
			}
		}
		if len(e.Value) > 0 {
			c.claimPresence(e.Client)
		} else {
			c.dropPresence(e.Client)
		}
	}
	return won
}

// RemovePresence tombstones every entry owned by c, returning a frame
// to broadcast, or nil when c owned nothing live.
func (r *Room) RemovePresence(c *Client) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tombs []protocol.PresenceEntry
	for _, id := range c.claimedPresence() {
		if tomb, ok := r.presence.Remove(id); ok {
			tombs = append(tombs, tomb)
		}
	}
	if len(tombs) == 0 {
		return nil
	}
	return protocol.PresenceFrame(tombs)
}

// Broadcast fans a frame out to every client except sender. Delivery
// is per-peer queued and never blocks on a slow connection.
func (r *Room) Broadcast(sender *Client, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.clients {
		if c == sender {
			continue
		}
		c.Send(frame)
	}
}

// StateVector exposes the replica's vector (used in tests).
func (r *Room) StateVector() doc.StateVector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replica.StateVector()
}

// markClosed flags the room so a racing Join fails with
// ErrRoomClosed. Called by the hub with the room empty.
func (r *Room) markClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.clients) > 0 {
		return false
	}
	r.closed = true
	return true
}
