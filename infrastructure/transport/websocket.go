package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig contains configuration for the websocket dialer.
type WebSocketConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Credentials      CredentialsProvider
	Logger           *slog.Logger
}

// DefaultWebSocketConfig returns default configuration.
func DefaultWebSocketConfig() *WebSocketConfig {
	return &WebSocketConfig{
		URL:              "ws://localhost:8080/events",
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// WebSocketDialer implements Dialer over gorilla/websocket.
type WebSocketDialer struct {
	cfg    *WebSocketConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

// NewWebSocketDialer creates a new websocket dialer.
func NewWebSocketDialer(cfg *WebSocketConfig) *WebSocketDialer {
	if cfg == nil {
		cfg = DefaultWebSocketConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WebSocketDialer{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: cfg.Logger.With("component", "transport"),
	}
}

// Dial opens a websocket authenticated with the connection's token.
func (d *WebSocketDialer) Dial(ctx context.Context, connectionID string, onMessage func(string), onEnded func()) (Conn, error) {
	header := http.Header{}
	if d.cfg.Credentials != nil {
		token, err := d.cfg.Credentials.Token(ctx, connectionID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve credentials for %s: %w", connectionID, err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	ws, resp, err := d.dialer.DialContext(ctx, d.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: %w (status %d)", d.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", d.cfg.URL, err)
	}

	c := &wsConn{
		ws:           ws,
		writeTimeout: d.cfg.WriteTimeout,
		inputClosed:  make(chan struct{}),
		logger:       d.logger.With("connection_id", connectionID),
	}
	go c.readLoop(onMessage, onEnded)

	d.logger.Info("Websocket connected", "url", d.cfg.URL, "connection_id", connectionID)
	return c, nil
}

// wsConn is a websocket connection with serialised writes.
type wsConn struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closing      bool
	closeOnce    sync.Once
	inputClosed  chan struct{}
	logger       *slog.Logger
}

// Send writes a text frame.
func (c *wsConn) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closing {
		return ErrConnClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// Close sends a close frame, waits for the peer to end the inbound direction, then aborts.
func (c *wsConn) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closing = true
		deadline := time.Now().Add(c.writeTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
			c.logger.Debug("Failed to send close frame", "error", werr)
		}
		c.writeMu.Unlock()

		select {
		case <-c.inputClosed:
		case <-ctx.Done():
			c.logger.Warn("Timed out waiting for websocket input to close, aborting")
		}
		err = c.ws.Close()
	})
	return err
}

// readLoop delivers inbound text frames until the connection ends.
func (c *wsConn) readLoop(onMessage func(string), onEnded func()) {
	defer func() {
		close(c.inputClosed)
		if onEnded != nil {
			onEnded()
		}
	}()

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("Websocket closed by peer")
			} else {
				c.logger.Debug("Websocket read ended", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if onMessage != nil {
			onMessage(string(data))
		}
	}
}

var _ Dialer = (*WebSocketDialer)(nil)
