package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	sendQueueSize = 256
	pingInterval  = 20 * time.Second
	writeWait     = 10 * time.Second
)

// Client is one admitted connection. Outbound frames go through a
// bounded queue drained by WritePump so one stalled peer never holds
// up a room; a peer whose queue overflows is closed as faulty.
type Client struct {
	ID   string
	Conn *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu       sync.Mutex
	hook     func([]byte)
	presence map[uint64]struct{} // presence client ids this session asserted
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		ID:       uuid.NewString(),
		Conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		presence: make(map[uint64]struct{}),
	}
}

// SetSendHook replaces the queued WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func([]byte)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send enqueues a frame without blocking. A full queue means the peer
// is not draining; it gets disconnected rather than backpressuring
// the room.
func (c *Client) Send(frame []byte) {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(frame)
		return
	}
	select {
	case c.send <- frame:
	case <-c.done:
	default:
		c.Close()
	}
}

// WritePump drains the send queue onto the connection and keeps the
// peer alive with pings. Runs in its own goroutine per connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close shuts the transport down. Safe to call more than once; only
// the first call has any effect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}

// Closed reports whether Close has run.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) claimPresence(id uint64) {
	c.mu.Lock()
	c.presence[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) dropPresence(id uint64) {
	c.mu.Lock()
	delete(c.presence, id)
	c.mu.Unlock()
}

func (c *Client) claimedPresence() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, 0, len(c.presence))
	for id := range c.presence {
		out = append(out, id)
	}
	return out
}
