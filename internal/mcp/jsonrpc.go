package mcp

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is the JSON-RPC protocol version used by MCP.
const jsonrpcVersion = "2.0"

// Request is a JSON-RPC 2.0 request message.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest creates a JSON-RPC 2.0 request with the given method and params.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Response is a JSON-RPC 2.0 response message. Exactly one of Result
// or Error is non-nil in a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface for RPCError.
func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification creates a JSON-RPC 2.0 notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	}
}

// MessageKind classifies an inbound JSON-RPC message.
type MessageKind int

const (
	// KindRequest is a message with both an ID and a method.
	KindRequest MessageKind = iota
	// KindResponse is a message with an ID and a result or error.
	KindResponse
	// KindNotification is a message with a method but no ID.
	KindNotification
)

// Message is a decoded inbound JSON-RPC message. Its shape is validated
// at decode time by DecodeMessage, so holders can rely on Kind without
// re-checking field combinations at every call site.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Kind reports which of the three JSON-RPC message shapes this is.
// Only meaningful on messages produced by DecodeMessage.
func (m *Message) Kind() MessageKind {
	switch {
	case m.ID != nil && m.Method != "":
		return KindRequest
	case m.ID != nil:
		return KindResponse
	default:
		return KindNotification
	}
}

// Response converts a KindResponse message into a Response value.
func (m *Message) Response() *Response {
	return &Response{
		JSONRPC: m.JSONRPC,
		ID:      *m.ID,
		Result:  m.Result,
		Error:   m.Error,
	}
}

// DecodeError reports a line that could not be decoded as a JSON-RPC
// message. Individual decode failures are non-fatal: the transport
// logs them and keeps reading.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode jsonrpc message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeMessage parses one framed line into a Message and validates
// that it is exactly one of request, response, or notification.
func DecodeMessage(line []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, &DecodeError{Line: string(line), Err: err}
	}

	if msg.JSONRPC != jsonrpcVersion {
		return nil, &DecodeError{
			Line: string(line),
			Err:  fmt.Errorf("unsupported jsonrpc version %q", msg.JSONRPC),
		}
	}

	switch msg.Kind() {
	case KindRequest:
		if msg.Result != nil || msg.Error != nil {
			return nil, &DecodeError{
				Line: string(line),
				Err:  fmt.Errorf("request carries result or error"),
			}
		}
	case KindResponse:
		if (msg.Result == nil) == (msg.Error == nil) {
			return nil, &DecodeError{
				Line: string(line),
				Err:  fmt.Errorf("response must carry exactly one of result or error"),
			}
		}
	case KindNotification:
		if msg.Method == "" {
			return nil, &DecodeError{
				Line: string(line),
				Err:  fmt.Errorf("notification without method"),
			}
		}
	}

	return &msg, nil
}
