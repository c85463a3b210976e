package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"solana-conn-proxy/internal/solana"
)

// Protocol errors.
var (
	ErrUnknownMethod = errors.New("unknown method")
	ErrInvalidParams = errors.New("invalid params")
)

// Error codes carried in a Response.
const (
	CodeNotConfigured = "not_configured"
	CodeNetwork       = "network"
	CodeRPC           = "rpc"
	CodeTimeout       = "timeout"
	CodeUnsupported   = "unsupported"
	CodeUnknownMethod = "unknown_method"
	CodeInvalidParams = "invalid_params"
	CodeCanceled      = "canceled"
	CodeInternal      = "internal"
)

var codeSentinels = map[string]error{
	CodeNotConfigured: solana.ErrNoConnection,
	CodeNetwork:       solana.ErrNetwork,
	CodeRPC:           solana.ErrRPC,
	CodeTimeout:       solana.ErrConfirmationTimeout,
	CodeUnsupported:   solana.ErrUnsupportedOperation,
	CodeUnknownMethod: ErrUnknownMethod,
	CodeInvalidParams: ErrInvalidParams,
	CodeCanceled:      context.Canceled,
}

// Request is one call over the channel.
type Request struct {
	ID     string            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Response answers the Request with the same ID. Exactly one of Result and
// Error is set.
type Response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Error is a failure reported across the channel.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// RPCCode is the node's JSON-RPC error code when Code is CodeRPC.
	RPCCode int `json:"rpcCode,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches the sentinel for the error's code, so callers test remote
// failures the same way as local ones.
func (e *Error) Is(target error) bool {
	s, ok := codeSentinels[e.Code]
	return ok && s == target
}

// ErrorFrom classifies err into a wire error.
func ErrorFrom(err error) *Error {
	var werr *Error
	if errors.As(err, &werr) {
		return werr
	}
	e := &Error{Code: CodeInternal, Message: err.Error()}
	var rpcErr *solana.RPCError
	switch {
	case errors.Is(err, solana.ErrNoConnection):
		e.Code = CodeNotConfigured
	case errors.Is(err, solana.ErrConfirmationTimeout):
		e.Code = CodeTimeout
	case errors.Is(err, solana.ErrUnsupportedOperation):
		e.Code = CodeUnsupported
	case errors.Is(err, ErrUnknownMethod):
		e.Code = CodeUnknownMethod
	case errors.Is(err, ErrInvalidParams):
		e.Code = CodeInvalidParams
	case errors.As(err, &rpcErr):
		e.Code = CodeRPC
		e.RPCCode = rpcErr.Code
	case errors.Is(err, solana.ErrNetwork):
		e.Code = CodeNetwork
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Code = CodeCanceled
	}
	return e
}

// NewRequest builds a request with each argument JSON encoded.
func NewRequest(id, method string, args ...any) (*Request, error) {
	params := make([]json.RawMessage, 0, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("%s: encode param %d: %w", method, i, err)
		}
		params = append(params, b)
	}
	return &Request{ID: id, Method: method, Params: params}, nil
}

// DecodeParams unmarshals positional params into dst. Trailing params may
// be omitted or null, leaving their destination unchanged. A nil
// destination skips its param.
func (r *Request) DecodeParams(dst ...any) error {
	if len(r.Params) > len(dst) {
		return fmt.Errorf("%w: %s takes at most %d params, got %d", ErrInvalidParams, r.Method, len(dst), len(r.Params))
	}
	for i, p := range r.Params {
		if dst[i] == nil || len(p) == 0 || string(p) == "null" {
			continue
		}
		if err := json.Unmarshal(p, dst[i]); err != nil {
			return fmt.Errorf("%w: %s param %d: %v", ErrInvalidParams, r.Method, i, err)
		}
	}
	return nil
}

// RequireParams fails unless at least n params are present and non-null.
func (r *Request) RequireParams(n int) error {
	if len(r.Params) < n {
		return fmt.Errorf("%w: %s requires %d params, got %d", ErrInvalidParams, r.Method, n, len(r.Params))
	}
	for i := 0; i < n; i++ {
		if string(r.Params[i]) == "null" {
			return fmt.Errorf("%w: %s param %d is null", ErrInvalidParams, r.Method, i)
		}
	}
	return nil
}

// Reply builds a successful response carrying v.
func Reply(id string, v any) *Response {
	b, err := json.Marshal(v)
	if err != nil {
		return Fail(id, fmt.Errorf("encode result: %w", err))
	}
	return &Response{ID: id, Result: b}
}

// Fail builds an error response.
func Fail(id string, err error) *Response {
	return &Response{ID: id, Error: ErrorFrom(err)}
}

// Decode unmarshals the response into dst, or returns its error.
func (r *Response) Decode(dst any) error {
	if r.Error != nil {
		return r.Error
	}
	if dst == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, dst); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
