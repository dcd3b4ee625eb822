package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dkeye/Huddle/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClientClosed = errors.New("connection closed")
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 32
)

// Client is one chat socket of one user. The hub never touches the socket
// itself, it only queues frames.
type Client struct {
	ID   string
	User *domain.User

	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func newClient(conn *websocket.Conn, user *domain.User) *Client {
	return &Client{
		ID:   uuid.NewString(),
		User: user,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *Client) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close sends a close frame with code and drops the socket. Only the first
// call has any effect.
func (c *Client) Close(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = c.conn.Close()
}
