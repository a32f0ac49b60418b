package mcp

import (
	"errors"
	"testing"
)

func TestDecodeMessageClassification(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind MessageKind
	}{
		{
			name: "request",
			line: `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			kind: KindRequest,
		},
		{
			name: "response with result",
			line: `{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`,
			kind: KindResponse,
		},
		{
			name: "response with error",
			line: `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"method not found"}}`,
			kind: KindResponse,
		},
		{
			name: "notification",
			line: `{"jsonrpc":"2.0","method":"notifications/initialized"}`,
			kind: KindNotification,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.line))
			if err != nil {
				t.Fatalf("DecodeMessage: %v", err)
			}
			if msg.Kind() != tt.kind {
				t.Errorf("Kind() = %v, want %v", msg.Kind(), tt.kind)
			}
		})
	}
}

func TestDecodeMessageRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", "hello world"},
		{"empty object", `{}`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"missing version", `{"id":1,"method":"ping"}`},
		{"response with both result and error", `{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`},
		{"response with neither result nor error", `{"jsonrpc":"2.0","id":1}`},
		{"request carrying result", `{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.line))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Errorf("expected *DecodeError, got %T", err)
			}
		})
	}
}

func TestMessageResponseConversion(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"jsonrpc":"2.0","id":42,"result":{"ok":true}}`))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}

	resp := msg.Response()
	if resp.ID != 42 {
		t.Errorf("ID = %d, want 42", resp.ID)
	}
	if resp.Error != nil {
		t.Errorf("Error = %v, want nil", resp.Error)
	}
	if len(resp.Result) == 0 {
		t.Error("Result is empty")
	}
}

func TestRPCErrorMessage(t *testing.T) {
	err := &RPCError{Code: -32601, Message: "method not found"}
	want := "jsonrpc error -32601: method not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
