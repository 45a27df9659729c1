// Package registry tracks the broker's shared connection state: the single
// device slot, the set of observing clients, and the history log. All
// mutation goes through Registry operations behind one mutex; session
// handlers never touch each other's connections directly.
package registry

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendBufferSize is the per-connection outgoing buffer. It absorbs bursts
// without blocking the broadcaster; a connection whose buffer fills is
// considered failed and is kicked.
const sendBufferSize = 256

// Timing for the write pump and read side. Pings keep NAT/firewalls happy
// and detect dead peers.
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 64 * 1024
)

// Role identifies which side of the broker a connection is.
type Role string

const (
	RoleDevice Role = "device"
	RoleClient Role = "client"
)

// Conn is one accepted connection. The session handler owns it for its
// entire lifetime and is the only reader of the underlying socket; all
// writes go through the send channel and the write pump, so the socket
// never sees concurrent writers.
type Conn struct {
	// id is the opaque role-prefixed identifier, e.g. "client_4f1c...".
	id string

	role Role

	// ws is the underlying WebSocket. Nil in registry tests, which read
	// from the send channel directly instead of running the write pump.
	ws *websocket.Conn

	// send is the buffered outgoing queue drained by WritePump.
	send chan []byte

	// done is closed exactly once to shut the connection down.
	done chan struct{}

	closeOnce sync.Once
}

// NewConn wraps an accepted WebSocket in a Conn with a fresh identifier.
func NewConn(role Role, ws *websocket.Conn) *Conn {
	return &Conn{
		id:   string(role) + "_" + uuid.NewString(),
		role: role,
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the connection's opaque identifier.
func (c *Conn) ID() string { return c.id }

// Role returns the connection's role.
func (c *Conn) Role() Role { return c.role }

// Done is closed when the connection is shutting down.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close signals the connection to shut down. Safe to call multiple times
// from different goroutines; only the first call has any effect. The write
// pump sends a close frame and closes the socket, which in turn unblocks
// the session handler's receive loop.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Send queues data for delivery. It never blocks: it reports false if the
// connection is shutting down or its buffer is full, in which case the
// caller should treat the connection as failed.
func (c *Conn) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- data:
		return true
	default:
		return false
	}
}

// WritePump drains the send channel to the WebSocket and sends periodic
// pings. It is the sole writer to the socket. Run it in its own goroutine;
// it exits, closing the socket, when Close is called or a write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signaled; send a close frame and exit.
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("registry: write to %s failed: %v", c.id, err)
				c.Close()
				return
			}
			log.Printf("registry: sent %d bytes to %s", len(data), c.id)

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// ReadMessage blocks until the next text frame arrives or the transport
// reports an error. Call ConfigureRead once before the receive loop.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	log.Printf("registry: received %d bytes from %s", len(data), c.id)
	return data, nil
}

// ConfigureRead sets the read limit and keepalive deadline handling.
// Call once before entering the receive loop.
func (c *Conn) ConfigureRead() {
	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
}
