package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pollroom/pkg/types"
)

const writeWait = 5 * time.Second

// Connection wraps a gorilla WebSocket connection behind a single writer
// goroutine so concurrent broadcasts never interleave frames. It implements
// interfaces.Conn.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu   sync.RWMutex
	role string
}

// NewConnection wraps conn and starts its writer goroutine. bufferSize is
// the number of outbound frames that may be queued before sends are dropped.
func NewConnection(id string, conn *websocket.Conn, bufferSize int) *Connection {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      id,
		conn:    conn,
		writeCh: make(chan []byte, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
		role:    types.RoleUnknown,
	}

	go c.writeLoop()

	return c
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for delivery. Delivery is fire-and-forget: when the
// buffer is full the frame is dropped and ErrWriteBufferFull returned so the
// sender never stalls on a slow client.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrWriteBufferFull
	}
}

// Close stops the writer goroutine and closes the underlying socket.
// Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// ID returns the server-assigned connection identifier.
func (c *Connection) ID() string {
	return c.id
}

// Role returns the connection's current role.
func (c *Connection) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// SetRole updates the connection's role.
func (c *Connection) SetRole(role string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}
