package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HTTPConfig configures an HTTP MCP transport that communicates with a
// remote MCP server over streamable HTTP (JSON-RPC over POST).
type HTTPConfig struct {
	// URL is the MCP server endpoint.
	URL string

	// Headers are additional HTTP headers sent with every request
	// (e.g., Authorization).
	Headers map[string]string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport communicates with an MCP server over streamable HTTP.
// Each JSON-RPC request is sent as an HTTP POST; the response comes
// back in the response body and is delivered on the inbound channel so
// the client sees the same asynchronous contract as the stdio
// transport.
type HTTPTransport struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
	inbound    chan *Message

	mu        sync.Mutex
	closed    bool
	sessionID string // Mcp-Session header for session affinity
}

// NewHTTPTransport creates an HTTP transport for the given config.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPTransport{
		url:        cfg.URL,
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		logger:     logger,
		inbound:    make(chan *Message, 16),
	}
}

// Start validates the configuration. No connection is opened: HTTP
// transports are connectionless and each Send is its own POST.
func (t *HTTPTransport) Start(_ context.Context) error {
	if t.url == "" {
		return fmt.Errorf("http transport: URL is required")
	}
	return nil
}

// Send posts one JSON-RPC message. For requests the response body is
// decoded and delivered on the inbound channel; for notifications a
// 200 or 202 status is accepted and no message is delivered.
func (t *HTTPTransport) Send(ctx context.Context, msg any) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	// Apply configured headers (auth, etc.).
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	// Include session ID if we have one from a previous response.
	t.mu.Lock()
	if t.sessionID != "" {
		httpReq.Header.Set("Mcp-Session", t.sessionID)
	}
	t.mu.Unlock()

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request to %s: %w", t.url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 1<<20))
		httpResp.Body.Close()
	}()

	// Capture session ID from response.
	if sid := httpResp.Header.Get("Mcp-Session"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	// Notifications expect no response content.
	if _, isNotif := msg.(*Notification); isNotif {
		if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("MCP server returned %d for notification", httpResp.StatusCode)
		}
		return nil
	}

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("MCP server returned %d", httpResp.StatusCode)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20)) // 10 MiB limit
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	inMsg, err := DecodeMessage(respBody)
	if err != nil {
		t.logger.Warn("skipping undecodable HTTP response body", "err", err)
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.inbound <- inMsg

	return nil
}

// Messages returns the inbound message channel.
func (t *HTTPTransport) Messages() <-chan *Message {
	return t.inbound
}

// Close marks the transport closed. The underlying HTTP client manages
// its own connection pool.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.inbound)
	return nil
}
