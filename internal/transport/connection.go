package transport

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/hephaestus-engine/hephaestus/pkg/core"
	"github.com/hephaestus-engine/hephaestus/pkg/streaming"
)

const (
	sendChSize     = 4096
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxControlSize = 4096
)

var (
	// ErrUnknownViewer is returned by Send for a viewer that is not connected.
	ErrUnknownViewer = errors.New("viewer not connected")
	// ErrSendBufferFull is returned by Send when a viewer cannot keep up.
	ErrSendBufferFull = errors.New("viewer send buffer full")
	// ErrConnectionClosed is returned by Send after the connection went away.
	ErrConnectionClosed = errors.New("viewer connection closed")
)

// connection is one viewer's WebSocket with a single write goroutine.
// Everything written to the socket goes through sendCh, except the final
// close frame.
type connection struct {
	id     core.ViewerID
	conn   *ws.Conn
	sendCh chan streaming.Message
	done   chan struct{} // closed on shutdown

	closeOnce sync.Once
	logger    *slog.Logger
}

func newConnection(id core.ViewerID, conn *ws.Conn, logger *slog.Logger) *connection {
	return &connection{
		id:     id,
		conn:   conn,
		sendCh: make(chan streaming.Message, sendChSize),
		done:   make(chan struct{}),
		logger: logger.With("viewer", id),
	}
}

// writeLoop drains sendCh and writes frames to the socket, pinging the
// viewer in between. It returns on the first write error or on shutdown.
func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sendCh:
			typ := ws.TextMessage
			if msg.Binary {
				typ = ws.BinaryMessage
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.close()
				return
			}
			if err := c.conn.WriteMessage(typ, msg.Data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("WebSocket ping failed", "error", err)
				c.close()
				return
			}
		}
	}
}

// readLoop hands every text frame to handle until the socket fails.
func (c *connection) readLoop(handle func(data []byte)) {
	c.conn.SetReadLimit(maxControlSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					c.logger.Warn("WebSocket read error", "error", err)
				}
			}
			return
		}
		if typ != ws.TextMessage {
			c.logger.Debug("Ignoring non-text frame from viewer", "type", typ)
			continue
		}
		handle(data)
	}
}

// send queues msgs for the write loop without blocking.
func (c *connection) send(msgs ...streaming.Message) error {
	for _, msg := range msgs {
		select {
		case <-c.done:
			return ErrConnectionClosed
		default:
		}
		select {
		case c.sendCh <- msg:
		default:
			return ErrSendBufferFull
		}
	}
	return nil
}

// close sends a close frame and shuts the socket down. Safe to call more
// than once.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		_ = c.conn.Close()
	})
}
