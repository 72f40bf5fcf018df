package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval      = 50 * time.Second
	readTimeout       = 90 * time.Second
	maxReconnectWait  = 30 * time.Second
	writeTimeout      = 10 * time.Second
	inboundBufferSize = 1024
)

// WebSocketTransport is the real Transport implementation: auto-reconnect
// with exponential backoff (1s -> 30s), a ping loop, and a read deadline
// that detects a silent server within roughly two missed pings. Framing
// details beyond raw text frames belong to the consumers of Inbound; this
// type supplies exactly the send/ready/inbound contract the duplex session
// needs.
type WebSocketTransport struct {
	url    string
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn
	ready  atomic.Bool

	inbound chan []byte
}

// NewWebSocketTransport builds a transport pointed at url. Run must be
// called to establish and maintain the connection.
func NewWebSocketTransport(url string, logger *slog.Logger) *WebSocketTransport {
	return &WebSocketTransport{
		url:     url,
		logger:  logger.With("component", "transport"),
		inbound: make(chan []byte, inboundBufferSize),
	}
}

// Inbound returns the channel of raw inbound frames.
func (w *WebSocketTransport) Inbound() <-chan []byte { return w.inbound }

// IsReady reports whether the connection is currently usable.
func (w *WebSocketTransport) IsReady() bool { return w.ready.Load() }

// SendText writes one text frame. Returns an error immediately if not
// connected rather than blocking - the duplex session maps that to
// SendDisconnected.
func (w *WebSocketTransport) SendText(ctx context.Context, data []byte) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("transport: not connected")
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Run connects and maintains the connection with exponential backoff until
// ctx is cancelled.
func (w *WebSocketTransport) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := w.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.ready.Store(false)
		w.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (w *WebSocketTransport) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()
	w.ready.Store(true)

	defer func() {
		w.connMu.Lock()
		conn.Close()
		w.conn = nil
		w.connMu.Unlock()
	}()

	w.logger.Info("websocket connected")

	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go w.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		select {
		case w.inbound <- msg:
		default:
			w.logger.Warn("inbound buffer full, dropping frame")
		}
	}
}

func (w *WebSocketTransport) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.connMu.Lock()
			conn := w.conn
			w.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}
