// Package stub provides an in-memory solana.Transport for tests.
package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"solana-conn-proxy/internal/solana"
)

// Handler produces the raw result for one call.
type Handler func(params []any) (any, error)

// Transport implements solana.Transport with per-method handlers.
// Results are marshaled to JSON so callers see what a node would return.
type Transport struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    map[string]int
	log      []Call
}

// Call records one dispatched request.
type Call struct {
	Method string
	Params []any
}

// NewTransport creates an empty stub transport.
func NewTransport() *Transport {
	return &Transport{
		handlers: make(map[string]Handler),
		calls:    make(map[string]int),
	}
}

// Handle registers h for method, replacing any previous handler.
func (t *Transport) Handle(method string, h Handler) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[method] = h
	return t
}

// Respond registers a fixed result for method.
func (t *Transport) Respond(method string, result any) *Transport {
	return t.Handle(method, func([]any) (any, error) { return result, nil })
}

// Fail registers a fixed error for method.
func (t *Transport) Fail(method string, err error) *Transport {
	return t.Handle(method, func([]any) (any, error) { return nil, err })
}

// Dispatch implements solana.Transport.
func (t *Transport) Dispatch(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.calls[method]++
	t.log = append(t.log, Call{Method: method, Params: params})
	h, ok := t.handlers[method]
	t.mu.Unlock()

	if !ok {
		return nil, &solana.RPCError{Code: -32601, Message: fmt.Sprintf("method not found: %s", method)}
	}
	result, err := h(params)
	if err != nil {
		return nil, err
	}
	if raw, ok := result.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(result)
}

// Calls returns how many times method was dispatched.
func (t *Transport) Calls(method string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[method]
}

// TotalCalls returns the number of dispatched requests.
func (t *Transport) TotalCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.log)
}

// Log returns a copy of all dispatched requests in order.
func (t *Transport) Log() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Call, len(t.log))
	copy(out, t.log)
	return out
}

// Reset clears recorded calls but keeps handlers.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = make(map[string]int)
	t.log = nil
}

// Compile-time interface check.
var _ solana.Transport = (*Transport)(nil)
