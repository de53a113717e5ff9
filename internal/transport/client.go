// internal/transport/client.go
// Package transport relays task requests and progress between a remote
// server and the local task queue over a websocket.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/vision-assistant/internal/config"
	"github.com/xkilldash9x/vision-assistant/internal/taskqueue"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultWriteTimeout = 10 * time.Second

// ErrNotConnected is returned by Publish while no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

// Handler receives the server's messages. *taskqueue.Manager implements it.
type Handler interface {
	Submit(raw []byte) (string, error)
	Kill() bool
}

var (
	_ Handler             = (*taskqueue.Manager)(nil)
	_ taskqueue.Publisher = (*Client)(nil)
)

// Client keeps a websocket to the relay server open, reconnecting as
// needed.
type Client struct {
	cfg    config.TransportConfig
	dialer *websocket.Dialer
	logger *zap.Logger

	// mu serializes writes; gorilla connections allow one writer.
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewClient creates a client for the configured relay server.
func NewClient(cfg config.TransportConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: cfg.InsecureTLS},
		},
		logger: logger.Named("transport"),
	}
}

// ServerURL builds the websocket URL from the configured server and path.
// http and https schemes map to ws and wss.
func ServerURL(server, path string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("server url %q has no host", server)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}

// Run connects and routes incoming messages to h until ctx ends. Dropped
// connections are retried with exponential backoff; a successful
// connection resets the delay.
func (c *Client) Run(ctx context.Context, h Handler) error {
	target, err := ServerURL(c.cfg.ServerURL, c.cfg.Path)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	if c.cfg.ReconnectDelay > 0 {
		b.InitialInterval = c.cfg.ReconnectDelay
	}
	if c.cfg.MaxReconnect > 0 {
		b.MaxInterval = c.cfg.MaxReconnect
	}

	err = backoff.RetryNotify(func() error {
		err := c.session(ctx, target, h, b.Reset)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		c.logger.Warn("Connection closed, attempting to reconnect...", zap.Error(err), zap.Duration("retry_in", next))
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// session serves one connection until it drops.
func (c *Client) session(ctx context.Context, target string, h Handler, connected func()) error {
	c.logger.Info("Connecting to server", zap.String("url", target))
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}
	connected()
	c.setConn(conn)
	defer c.setConn(nil)
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c.logger.Info("Connected to WebSocket server")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(h, data)
	}
}

func (c *Client) dispatch(h Handler, data []byte) {
	if !json.Valid(data) {
		c.logger.Error("Invalid JSON received")
		return
	}
	if jsoniter.Get(data, "type").ToString() == "kill" {
		h.Kill()
		return
	}
	id, err := h.Submit(data)
	if err != nil {
		c.logger.Error("Failed to queue message", zap.Error(err))
		return
	}
	c.logger.Debug("Message queued", zap.String("job_id", id))
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Publish implements taskqueue.Publisher. A ping precedes every response.
func (c *Client) Publish(ctx context.Context, r taskqueue.Response) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	timeout := c.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}
