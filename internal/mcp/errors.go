package mcp

import (
	"errors"
	"fmt"
)

// Sentinel errors for session-level failures.
var (
	// ErrNotInitialized is returned when a protocol operation is
	// attempted before the initialize handshake has completed.
	ErrNotInitialized = errors.New("mcp client not initialized")

	// ErrTransportClosed is returned when the transport has shut down,
	// including for requests that were still pending at shutdown.
	ErrTransportClosed = errors.New("mcp transport closed")

	// ErrRequestTimeout is returned when a request's deadline expires
	// before a matching response arrives. A response arriving after
	// the deadline is discarded.
	ErrRequestTimeout = errors.New("mcp request timed out")
)

// LaunchError reports that the server subprocess could not be started.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch mcp server %s: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// UnknownToolError reports a tools/call attempt for a name that was not
// present in the discovered tool list. The transport is never contacted.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// ToolExecutionError reports that the server executed (or refused to
// execute) a tool and signalled failure, either as a JSON-RPC error or
// as an isError tool result.
type ToolExecutionError struct {
	Tool    string
	Code    int // JSON-RPC error code, 0 for isError results
	Message string
}

func (e *ToolExecutionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("tool %s failed (code %d): %s", e.Tool, e.Code, e.Message)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}
