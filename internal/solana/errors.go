package solana

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the connection layer.
var (
	// ErrNoConnection is returned when an operation runs before a
	// connection has been configured.
	ErrNoConnection = errors.New("connection not configured")

	// ErrNetwork marks transport failures reaching the node.
	ErrNetwork = errors.New("network error")

	// ErrRPC marks errors returned by the node itself.
	ErrRPC = errors.New("rpc error")

	// ErrConfirmationTimeout is returned when a signature is not observed
	// before the confirmation watchdog fires.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")

	// ErrUnsupportedOperation is returned for operations outside the
	// supported capability set.
	ErrUnsupportedOperation = errors.New("operation not supported")
)

// NetworkError wraps a transport failure for a single method call.
type NetworkError struct {
	Method string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network: %v", e.Method, e.Err)
}

// Unwrap exposes both ErrNetwork and the underlying cause.
func (e *NetworkError) Unwrap() []error {
	return []error{ErrNetwork, e.Err}
}

// RPCError is a JSON-RPC 2.0 error object returned by the node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Is matches ErrRPC.
func (e *RPCError) Is(target error) bool {
	return target == ErrRPC
}

// UnsupportedError names the rejected operation.
type UnsupportedError struct {
	Method string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Method, ErrUnsupportedOperation)
}

// Is matches ErrUnsupportedOperation.
func (e *UnsupportedError) Is(target error) bool {
	return target == ErrUnsupportedOperation
}
