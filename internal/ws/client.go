package ws

import (
	"sync"
	"time"

	"watchpartygo/internal/auth"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must be < pongWait
)

// clientConn is one authenticated session. Its identity never changes after
// the handshake. Every write to the socket goes through writePump.
type clientConn struct {
	id       string
	identity auth.Identity
	rawConn  *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClientConn(rawConn *websocket.Conn, who auth.Identity, buffer int) *clientConn {
	return &clientConn{
		id:       uuid.NewString(),
		identity: who,
		rawConn:  rawConn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
	}
}

func (c *clientConn) member() Member {
	return Member{ID: c.identity.UserID, Username: c.identity.Username}
}

// enqueue hands a frame to the write pump without blocking. It reports false
// when the session is closed or its buffer is full.
func (c *clientConn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *clientConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *clientConn) write(mt int, data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.rawConn.WriteMessage(mt, data)
}

func (c *clientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.rawConn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
