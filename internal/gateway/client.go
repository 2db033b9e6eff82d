package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulse/pkg/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer
	maxMessageSize = 4096

	// Outbound buffer per connection; a buffer that stays full past
	// writeWait marks the consumer as too slow and tears the connection down
	sendBufferSize = 256
)

var errConnClosed = errors.New("connection closed")
var errSendBufferFull = errors.New("send buffer full")

// client is the per-connection socket handle held by the registry. All
// writes funnel through the buffered send channel into the write pump, so
// the bridge listener, the offline drain, and the ping ticker never contend
// on the underlying gorilla conn.
type client struct {
	userID domain.UserID
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(userID domain.UserID, conn *websocket.Conn, logger *slog.Logger) *client {
	return &client{
		userID: userID,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Send hands a payload to the write pump. When the buffer is full the send
// blocks up to writeWait so bursts larger than the buffer (an offline drain,
// a room-wide broadcast) ride through; a consumer that cannot absorb the
// burst within the deadline is torn down as too slow.
func (c *client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
	}
	timer := time.NewTimer(writeWait)
	defer timer.Stop()
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	case <-timer.C:
		return errSendBufferFull
	}
}

// Close shuts the connection down exactly once. Safe to call from the
// registry (replacement), the pumps (socket error), and shutdown.
func (c *client) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
	return nil
}

// readPump reads frames from the socket and hands them to handle until the
// socket errors or closes. Runs on the connection's own goroutine.
func (c *client) readPump(handle func(frame []byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed",
					"user_id", c.userID.String(),
					"error", err,
				)
			}
			return
		}
		handle(frame)
	}
}

// writePump serializes all socket writes: queued payloads and keepalive
// pings. Runs on its own goroutine; exits when the connection closes.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
