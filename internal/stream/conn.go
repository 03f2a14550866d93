package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn is one observer connection. writeLoop is the only writer; readLoop
// the only reader.
type conn struct {
	id     string
	cfg    Config
	logger *slog.Logger
	ws     *websocket.Conn

	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	dropped int64
}

func newConn(id string, ws *websocket.Conn, cfg Config, logger *slog.Logger) *conn {
	return &conn{
		id:     id,
		cfg:    cfg,
		logger: logger,
		ws:     ws,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// Send queues data for writing without blocking.
func (c *conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		return ErrBufferFull
	}
}

// Done is closed once the connection is shut down.
func (c *conn) Done() <-chan struct{} {
	return c.done
}

// Dropped returns how many frames were discarded because the send buffer
// was full.
func (c *conn) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Close shuts the connection down. Safe to call more than once.
func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = c.ws.Close()
	})
	return err
}

// readLoop hands each client message to handle until the peer goes away or
// stops answering pings.
func (c *conn) readLoop(handle func([]byte)) {
	defer c.Close()

	c.ws.SetReadLimit(4096)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Debug("observer read failed", "conn_id", c.id, "error", err)
				}
			}
			return
		}
		handle(data)
	}
}

// writeLoop drains the send buffer and pings the peer.
func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return

		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("observer write failed", "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "conn_id", c.id, "error", err)
				return
			}
		}
	}
}
