package relay

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/telemed/internal/domain"
)

var (
	ErrBackpressure = errors.New("relay: send buffer full")
	ErrConnClosed   = errors.New("relay: connection closed")
)

// Conn is one websocket attached to the hub. An identity may hold several.
type Conn struct {
	ID       string
	Identity string
	Role     domain.Role

	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newConn(ws *websocket.Conn, identity string, role domain.Role, buffer int) *Conn {
	if buffer <= 0 {
		buffer = 16
	}
	return &Conn{
		ID:       uuid.NewString(),
		Identity: identity,
		Role:     role,
		ws:       ws,
		send:     make(chan []byte, buffer),
	}
}

// TrySend queues a frame without blocking; slow readers lose frames.
func (c *Conn) TrySend(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
}
