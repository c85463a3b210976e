// Package channel carries wire requests from remote proxies to the
// connection supervisor and its replies back. Delivery is at most once:
// a request is never resent, and a request whose reply cannot arrive
// fails with ErrClosed.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/wire"
)

// ErrClosed is returned by calls on a closed channel and by calls whose
// reply was pending when the channel closed.
var ErrClosed = errors.New("channel closed")

var errNilResponse = errors.New("handler returned no response")

// Handler serves requests.
type Handler interface {
	Handle(ctx context.Context, req *wire.Request) *wire.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *wire.Request) *wire.Response

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *wire.Request) *wire.Response {
	return f(ctx, req)
}

// Channel sends a request and waits for its reply.
type Channel interface {
	Call(ctx context.Context, req *wire.Request) (*wire.Response, error)
	Close() error
}

// frame is one WebSocket message. Exactly one field is set.
type frame struct {
	Request  *wire.Request  `json:"request,omitempty"`
	Response *wire.Response `json:"response,omitempty"`
	Event    *events.Event  `json:"event,omitempty"`
}

func decodeFrame(b []byte) (*frame, error) {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

// Local is an in-process Channel that calls the handler directly. The
// request and reply still pass through their JSON encoding so local and
// remote callers observe the same values.
type Local struct {
	handler Handler
	done    chan struct{}
	once    sync.Once
}

// NewLocal creates a local channel to h.
func NewLocal(h Handler) *Local {
	return &Local{handler: h, done: make(chan struct{})}
}

// Call implements Channel.
func (l *Local) Call(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	select {
	case <-l.done:
		return nil, ErrClosed
	default:
	}

	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var sent wire.Request
	if err := json.Unmarshal(b, &sent); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	resp := l.handler.Handle(ctx, &sent)
	b, err = json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	var out wire.Response
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Close implements Channel.
func (l *Local) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// Compile-time interface checks.
var (
	_ Channel = (*Local)(nil)
	_ Channel = (*WSClient)(nil)
)
