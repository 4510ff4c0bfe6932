package wssink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/torresjeff/mjpeg"
	"github.com/torresjeff/mjpeg/rand"
)

const maxPendingEvents = 16

// Event is the JSON text message sent when a camera's state changes.
type Event struct {
	Camera  string `json:"camera"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

// client is the subscriber behind one websocket connection. It holds at most one undelivered
// frame: a newer frame replaces it.
type client struct {
	id      string
	conn    *websocket.Conn
	dropped *atomic.Uint64

	mu     sync.Mutex
	frame  []byte
	events []Event

	wake   chan struct{}
	closed chan struct{}
}

func newClient(conn *websocket.Conn, dropped *atomic.Uint64) *client {
	return &client{
		id:      rand.GenerateUuid(),
		conn:    conn,
		dropped: dropped,
		wake:    make(chan struct{}, 1),
		closed:  make(chan struct{}),
	}
}

func (c *client) GetID() string {
	return c.id
}

func (c *client) SendFrame(key string, handle *mjpeg.DisplayHandle) {
	payload := make([]byte, len(handle.Frame.Payload))
	copy(payload, handle.Frame.Payload)

	c.mu.Lock()
	if c.frame != nil {
		c.dropped.Add(1)
	}
	c.frame = payload
	c.mu.Unlock()
	c.signal()
}

func (c *client) SendAuthRequired(key string) {
	c.queue(Event{Camera: key, State: mjpeg.AuthRequired.String()})
}

func (c *client) SendError(key string, message string) {
	c.queue(Event{Camera: key, State: mjpeg.Failed.String(), Message: message})
}

func (c *client) queue(event Event) {
	c.mu.Lock()
	// the frame shown before the event is no longer current
	c.frame = nil
	if len(c.events) == maxPendingEvents {
		c.events = c.events[1:]
	}
	c.events = append(c.events, event)
	c.mu.Unlock()
	c.signal()
}

func (c *client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// writeLoop sends pending events, then the pending frame, until the connection closes.
func (c *client) writeLoop() error {
	for {
		select {
		case <-c.closed:
			return nil
		case <-c.wake:
		}

		c.mu.Lock()
		events, frame := c.events, c.frame
		c.events, c.frame = nil, nil
		c.mu.Unlock()

		for _, event := range events {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(event); err != nil {
				return err
			}
		}
		if frame != nil {
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return err
			}
		}
	}
}

// readLoop discards client messages; it exists to notice when the peer goes away.
func (c *client) readLoop() {
	defer close(c.closed)
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			return
		}
	}
}
