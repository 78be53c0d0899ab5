package session

import "sync"

// Hub is the room registry: the only structure with cross-room
// synchronization, and only for insert and remove. Per-room traffic
// never takes the hub lock.
type Hub struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	capacity int
}

// NewHub returns a registry whose rooms admit at most capacity
// participants each.
func NewHub(capacity int) *Hub {
	return &Hub{rooms: make(map[string]*Room), capacity: capacity}
}

// GetOrCreate returns the live room for id, creating it when absent.
// Exactly one creation wins under concurrent callers.
func (h *Hub) GetOrCreate(id string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		return r
	}
	r := NewRoom(id, h.capacity)
	h.rooms[id] = r
	return r
}

// Get looks a room up without creating it.
func (h *Hub) Get(id string) (*Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[id]
	return r, ok
}

// Release tears room down if it is still the registered room for id
// and has emptied. The identity check means a stale release can never
// destroy a successor room created for the same id.
func (h *Hub) Release(id string, room *Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[id] != room {
		return
	}
	if room.markClosed() {
		delete(h.rooms, id)
	}
}

// Len reports the number of live rooms.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}
