package channel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/wire"
)

// WSClientConfig configures WebSocket client behavior.
type WSClientConfig struct {
	// HandshakeTimeout bounds the initial dial.
	HandshakeTimeout time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long the connection may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// NotificationBuffer is the capacity of the Notifications channel.
	NotificationBuffer int

	Logger *zap.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		HandshakeTimeout:   10 * time.Second,
		PingInterval:       30 * time.Second,
		ReadTimeout:        60 * time.Second,
		WriteTimeout:       10 * time.Second,
		NotificationBuffer: 256,
	}
}

func (c WSClientConfig) withDefaults() WSClientConfig {
	def := DefaultWSConfig()
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.NotificationBuffer <= 0 {
		c.NotificationBuffer = def.NotificationBuffer
	}
	return c
}

// WSClient is a Channel to a remote Server. It never reconnects: once the
// connection drops every pending and future call fails with ErrClosed.
type WSClient struct {
	endpoint string
	config   WSClientConfig
	logger   *zap.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool

	// pending maps request ID to the caller waiting for its reply
	pending   map[string]chan *wire.Response
	pendingMu sync.Mutex

	notes   chan events.Event
	dropped atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWSClient connects to endpoint.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = config.withDefaults()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   cfg.Logger.Named("channel_client"),
		conn:     conn,
		pending:  make(map[string]chan *wire.Response),
		notes:    make(chan events.Event, cfg.NotificationBuffer),
		done:     make(chan struct{}),
	}
	conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

// Call sends req and waits for its reply. A request without an ID is given
// a fresh one. Canceling ctx abandons the reply but cannot recall the
// request.
func (c *WSClient) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	replyCh := make(chan *wire.Response, 1)
	c.pendingMu.Lock()
	if _, dup := c.pending[req.ID]; dup {
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("request %s already pending", req.ID)
	}
	c.pending[req.ID] = replyCh
	c.pendingMu.Unlock()

	if err := c.write(&frame{Request: req}); err != nil {
		c.forget(req.ID)
		if c.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case resp, ok := <-replyCh:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(req.ID)
		return nil, ctx.Err()
	}
}

// Notifications returns events forwarded by the server. The channel is
// closed when the connection ends. Events arriving while it is full are
// dropped.
func (c *WSClient) Notifications() <-chan events.Event {
	return c.notes
}

// Dropped reports how many notifications were discarded because the
// Notifications channel was full.
func (c *WSClient) Dropped() int64 {
	return c.dropped.Load()
}

// Close closes the connection and fails pending calls.
func (c *WSClient) Close() error {
	c.shutdown()
	c.wg.Wait()
	return nil
}

func (c *WSClient) shutdown() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)

		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.writeMu.Unlock()

		c.pendingMu.Lock()
		for id, ch := range c.pending {
			close(ch)
			delete(c.pending, id)
		}
		c.pendingMu.Unlock()
	})
}

func (c *WSClient) write(f *frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteJSON(f)
}

func (c *WSClient) forget(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// readLoop dispatches replies and notifications until the connection ends.
func (c *WSClient) readLoop() {
	defer c.wg.Done()
	defer close(c.notes)
	defer c.shutdown()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() {
				c.logger.Debug("connection lost", zap.String("endpoint", c.endpoint), zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		f, err := decodeFrame(message)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		switch {
		case f.Response != nil:
			c.handleResponse(f.Response)
		case f.Event != nil:
			// Replies are read on this loop too; never block on an unread
			// notification.
			select {
			case c.notes <- *f.Event:
			default:
				c.dropped.Add(1)
				c.logger.Warn("notification buffer full, dropping event", zap.String("event", f.Event.Name))
			}
		}
	}
}

func (c *WSClient) handleResponse(resp *wire.Response) {
	c.pendingMu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- resp
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
			}
		}
	}
}
