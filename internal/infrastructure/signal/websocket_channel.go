// Package signal adapts WebSocket connections into the SignalChannel the
// core consumes. The core is transport-agnostic; only message order on a
// session channel matters.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arcrtc/internal/core/ports"
	"arcrtc/pkg/signaling"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketChannel frames signaling messages as WebSocket text messages.
// Sends are serialized; gorilla connections allow one concurrent writer.
type WebSocketChannel struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

// NewWebSocketChannel wraps an established connection.
func NewWebSocketChannel(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketChannel {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketChannel{conn: conn, writeTimeout: writeTimeout}
}

// Dial connects to a signaling endpoint.
func Dial(ctx context.Context, url string, writeTimeout time.Duration) (*WebSocketChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketChannel(conn, writeTimeout), nil
}

// Send encodes and writes one message.
func (c *WebSocketChannel) Send(ctx context.Context, msg signaling.Message) error {
	data, err := signaling.Encode(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks for the next message. Frames that fail to decode are
// returned as errors; the caller decides whether to keep reading.
func (c *WebSocketChannel) Receive(ctx context.Context) (signaling.Message, error) {
	if d, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(d); err != nil {
			return nil, err
		}
	} else {
		if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return signaling.Decode(data)
}

// Close closes the underlying connection.
func (c *WebSocketChannel) Close() error {
	return c.conn.Close()
}

// ChannelHandler receives each accepted signaling channel.
type ChannelHandler func(ch ports.SignalChannel)

// Server upgrades HTTP requests into signaling channels.
type Server struct {
	handler      ChannelHandler
	writeTimeout time.Duration
	logger       *zap.SugaredLogger
}

// NewServer creates a WebSocket signaling server.
func NewServer(handler ChannelHandler, writeTimeout time.Duration, log *zap.SugaredLogger) *Server {
	return &Server{handler: handler, writeTimeout: writeTimeout, logger: log}
}

// HandleWebSocket upgrades the request and hands the channel to the
// configured handler, which owns its lifetime.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	s.logger.Infow("signaling peer connected", "remote", conn.RemoteAddr().String())
	s.handler(NewWebSocketChannel(conn, s.writeTimeout))
}
