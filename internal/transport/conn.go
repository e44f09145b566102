package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"drone-fleet/internal/fleet"
)

const (
	sendChSize     = 64
	maxMessageSize = 1 << 20
)

var errConnClosed = errors.New("websocket connection closed")

// Config tunes websocket keep-alive and write timeouts.
type Config struct {
	WriteWait time.Duration
	PongWait  time.Duration
}

func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	return c
}

// conn owns one websocket. Every write goes through writeLoop, the only
// goroutine allowed to write to the socket.
type conn struct {
	ws     *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	cfg    Config
	logger *slog.Logger
}

func newConn(socket *ws.Conn, cfg Config, logger *slog.Logger) *conn {
	c := &conn{
		ws:     socket,
		sendCh: make(chan []byte, sendChSize),
		done:   make(chan struct{}),
		cfg:    cfg,
		logger: logger,
	}
	socket.SetReadLimit(maxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(cfg.PongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})
	return c
}

// Send queues msg for the write loop. It fails once the connection is
// closed.
func (c *conn) Send(ctx context.Context, msg fleet.Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.sendRaw(ctx, data)
}

func (c *conn) sendRaw(ctx context.Context, data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the write loop, which sends a close frame and releases the
// socket. Safe to call more than once.
func (c *conn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteWait))
			return
		case data := <-c.sendCh:
			if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Warn("websocket set write deadline failed", slog.String("error", err.Error()))
				c.Close()
				return
			}
			if err := c.ws.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("websocket write failed", slog.String("error", err.Error()))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(ws.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				c.logger.Debug("websocket ping failed", slog.String("error", err.Error()))
				c.Close()
				return
			}
		}
	}
}

func isUnexpectedClose(err error) bool {
	return ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway, ws.CloseNoStatusReceived)
}
