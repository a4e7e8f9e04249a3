// Package util provides error types shared across the forwarding
// engine. The wrapper-struct-with-Unwrap idiom is carried over from
// the SAM bridge's session/connection error types, generalized from
// protocol-command context to flow (Connection/Tunnel) context.
package util

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the stream and datagram forwarders.
var (
	// ErrClosed indicates an operation was attempted on an
	// already-closed forwarder, connection, or tunnel.
	ErrClosed = errors.New("already closed")

	// ErrNotStarted indicates an operation was attempted before
	// Start() completed successfully.
	ErrNotStarted = errors.New("not started")

	// ErrConnectTimeout indicates the bounded-time connect to the
	// remote endpoint did not complete before the deadline.
	ErrConnectTimeout = errors.New("connect timed out")
)

// FlowError wraps an error with the context of a single forwarding
// flow (a stream Connection or a datagram Tunnel), for diagnostic
// logging only — this daemon has no control plane to surface errors
// to, so FlowError values are logged and discarded, never returned to
// a caller across a flow boundary.
type FlowError struct {
	Remote    string // original source endpoint of the flow
	Operation string // "connect", "accept", "relay", "send_to", ...
	Err       error
}

// NewFlowError creates a FlowError with the given context.
func NewFlowError(remote, operation string, err error) *FlowError {
	return &FlowError{Remote: remote, Operation: operation, Err: err}
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Remote == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Remote, e.Operation, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *FlowError) Unwrap() error {
	return e.Err
}
