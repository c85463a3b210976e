package channel

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/wire"
)

// ServerOptions configures Server.
type ServerOptions struct {
	// Bus supplies notifications forwarded to every client. Optional.
	Bus    events.Bus
	Logger *zap.Logger

	WriteTimeout time.Duration // Default: 10s
	// MaxInFlight bounds concurrently served requests per client.
	MaxInFlight int // Default: 16
}

// Server accepts proxy connections over WebSocket and serves their
// requests with a Handler. Replies may be written out of request order;
// proxies match them by ID.
type Server struct {
	handler      Handler
	bus          events.Bus
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	maxInFlight  int

	mu     sync.Mutex
	conns  map[*serverConn]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewServer creates a server for h.
func NewServer(h Handler, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	return &Server{
		handler: h,
		bus:     opts.Bus,
		logger:  opts.Logger.Named("channel"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: opts.WriteTimeout,
		maxInFlight:  opts.MaxInFlight,
		conns:        make(map[*serverConn]struct{}),
	}
}

// serverConn is one connected proxy.
type serverConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
}

func (c *serverConn) write(f *frame, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(timeout))
	return c.ws.WriteJSON(f)
}

// ServeHTTP upgrades the request and serves the connection until either
// side closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	conn := &serverConn{ws: ws, cancel: cancel}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		ws.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.wg.Done()
	}()

	s.serve(ctx, conn, r.RemoteAddr)
}

func (s *Server) serve(ctx context.Context, conn *serverConn, remote string) {
	logger := s.logger.With(zap.String("remote", remote))
	logger.Debug("proxy connected")
	defer logger.Debug("proxy disconnected")

	if s.bus != nil {
		unsubscribe, err := s.bus.Subscribe(events.TopicNotifications, func(e events.Event) {
			if ctx.Err() != nil {
				return
			}
			if err := conn.write(&frame{Event: &e}, s.writeTimeout); err != nil {
				logger.Debug("forward notification failed", zap.String("event", e.Name), zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("subscribe notifications", zap.Error(err))
		} else {
			defer unsubscribe()
		}
	}

	var g errgroup.Group
	g.SetLimit(s.maxInFlight)
	defer func() {
		conn.cancel()
		g.Wait()
		conn.ws.Close()
	}()

	for {
		_, msg, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		f, err := decodeFrame(msg)
		if err != nil || f.Request == nil {
			logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		req := f.Request
		g.Go(func() error {
			resp := s.handler.Handle(ctx, req)
			if resp == nil {
				resp = wire.Fail(req.ID, errNilResponse)
			}
			if err := conn.write(&frame{Response: resp}, s.writeTimeout); err != nil {
				logger.Debug("write reply failed", zap.String("method", req.Method), zap.Error(err))
			}
			return nil
		})
	}
}

// Close disconnects every client and waits for their requests to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		// Close before cancel so no reply to a canceled request is written.
		conn.writeMu.Lock()
		conn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(time.Second))
		conn.ws.Close()
		conn.writeMu.Unlock()
		conn.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
