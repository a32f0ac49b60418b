package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/registrarhq/registrar/internal/buildinfo"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// defaultRequestTimeout bounds each request when no override is given.
const defaultRequestTimeout = 30 * time.Second

// ToolDefinition is an MCP tool as returned by tools/list.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ContentBlock is a single content item in a tools/call response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// callToolResult is the result payload of a tools/call response.
type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// toolsListResult is the result payload of a tools/list response.
type toolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// serverInfo is returned in the initialize response.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// serverCapabilities describes what an MCP server supports.
type serverCapabilities struct {
	Tools *struct{} `json:"tools,omitempty"`
}

// initializeResult is the full initialize response result.
type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      serverInfo         `json:"serverInfo"`
	Capabilities    serverCapabilities `json:"capabilities"`
}

// Client connects to a single MCP server and provides typed access to
// the MCP protocol operations (initialize, tools/list, tools/call).
//
// Requests are correlated to responses through a pending-request table
// keyed by request ID. The table entry is registered before the request
// is written, so a response can never arrive ahead of its waiter. A
// background goroutine drains the transport's inbound channel and
// resolves waiters; the caller's goroutine only inserts entries and
// waits on them.
type Client struct {
	name           string
	transport      Transport
	logger         *slog.Logger
	requestTimeout time.Duration
	nextID         atomic.Int64
	done           chan struct{}

	mu          sync.Mutex
	pending     map[int64]chan *Response
	closed      bool
	initialized bool
	serverName  string
	serverVer   string
	tools       []ToolDefinition
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRequestTimeout overrides the per-request deadline.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// NewClient creates an MCP client for the given server. The transport
// determines how messages are delivered (stdio subprocess or HTTP).
func NewClient(name string, transport Transport, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		name:           name,
		transport:      transport,
		logger:         logger.With("mcp_server", name),
		requestTimeout: defaultRequestTimeout,
		done:           make(chan struct{}),
		pending:        make(map[int64]chan *Response),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the server name this client is connected to.
func (c *Client) Name() string {
	return c.name
}

// Connect starts the transport and performs the MCP handshake: an
// initialize request followed by the notifications/initialized
// notification. It must be called exactly once, before any other
// operation.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Start(ctx); err != nil {
		return err
	}

	go c.receiveLoop()

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "registrar",
			"version": buildinfo.Version,
		},
	}

	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize: %w", resp.Error)
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}

	c.mu.Lock()
	c.initialized = true
	c.serverName = result.ServerInfo.Name
	c.serverVer = result.ServerInfo.Version
	c.mu.Unlock()

	c.logger.Info("MCP server initialized",
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol_version", result.ProtocolVersion,
	)

	// Send the initialized notification to complete the handshake.
	if err := c.transport.Send(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}

	return nil
}

// receiveLoop drains the transport's inbound channel for the lifetime
// of the session. Responses resolve their pending waiter; a response
// with no waiter (late arrival after a timeout, or never requested) is
// logged and discarded. Notifications and server-initiated requests
// are logged and dropped — the bridge registers no handlers for them.
func (c *Client) receiveLoop() {
	for msg := range c.transport.Messages() {
		switch msg.Kind() {
		case KindResponse:
			resp := msg.Response()
			c.mu.Lock()
			ch, ok := c.pending[resp.ID]
			if ok {
				delete(c.pending, resp.ID)
			}
			c.mu.Unlock()
			if !ok {
				c.logger.Debug("discarding unmatched response", "id", resp.ID)
				continue
			}
			ch <- resp
		case KindNotification:
			c.logger.Debug("ignoring server notification", "method", msg.Method)
		case KindRequest:
			c.logger.Debug("ignoring server-initiated request",
				"method", msg.Method, "id", *msg.ID,
			)
		}
	}

	// Transport is gone: fail every waiter still pending so nothing
	// hangs forever.
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan *Response)
	c.closed = true
	c.mu.Unlock()

	for id, ch := range pending {
		c.logger.Warn("failing pending request on transport close", "id", id)
		close(ch)
	}
	close(c.done)
}

// ListTools calls tools/list and returns the available tool definitions.
// Results are cached for the session; subsequent calls return the
// cached list without touching the transport.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil, ErrNotInitialized
	}
	if c.tools != nil {
		defer c.mu.Unlock()
		return c.tools, nil
	}
	c.mu.Unlock()

	resp, err := c.send(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("tools/list: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list: %w", resp.Error)
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("unmarshal tools/list result: %w", err)
	}

	c.mu.Lock()
	if result.Tools == nil {
		// Cache an empty, non-nil slice: a server with zero tools is
		// legitimate and should not trigger rediscovery.
		result.Tools = []ToolDefinition{}
	}
	c.tools = result.Tools
	c.mu.Unlock()

	c.logger.Info("discovered MCP tools", "count", len(result.Tools))
	return result.Tools, nil
}

// CallTool invokes a tool by name with the given arguments. The name
// must appear in the discovered tool list; otherwise UnknownToolError
// is returned without contacting the transport. The result is
// extracted from the response content blocks as a single string.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return "", ErrNotInitialized
	}
	known := false
	for _, td := range c.tools {
		if td.Name == name {
			known = true
			break
		}
	}
	c.mu.Unlock()

	if !known {
		return "", &UnknownToolError{Name: name}
	}

	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.send(ctx, "tools/call", params)
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", name, err)
	}
	if resp.Error != nil {
		return "", &ToolExecutionError{
			Tool:    name,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
		}
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", fmt.Errorf("unmarshal tools/call result: %w", err)
	}

	text := extractText(result.Content)

	if result.IsError {
		return "", &ToolExecutionError{Tool: name, Message: text}
	}

	return text, nil
}

// Ping checks whether the MCP server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()
	if !initialized {
		return ErrNotInitialized
	}

	resp, err := c.send(ctx, "ping", nil)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

// ServerInfo returns the name and version the server reported during
// the handshake.
func (c *Client) ServerInfo() (name, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverName, c.serverVer
}

// Close shuts down the client and its transport. Requests still in
// flight resolve with ErrTransportClosed.
func (c *Client) Close() error {
	c.logger.Info("closing MCP client")
	err := c.transport.Close()

	// Wait for the receive loop to fail the remaining waiters.
	select {
	case <-c.done:
	case <-time.After(stopGracePeriod):
		c.logger.Warn("receive loop did not drain in time")
	}
	return err
}

// send issues one JSON-RPC request and waits for the matching response,
// the per-request deadline, or transport shutdown. The pending entry is
// registered before the request is written so the response cannot race
// the waiter.
func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	id := c.nextID.Add(1)
	req := NewRequest(id, method, params)

	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrTransportClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.transport.Send(ctx, req); err != nil {
		c.unregister(id)
		return nil, err
	}

	timer := time.NewTimer(c.requestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrTransportClosed
		}
		return resp, nil
	case <-timer.C:
		c.unregister(id)
		c.logger.Warn("request timed out", "method", method, "id", id)
		return nil, fmt.Errorf("%s after %s: %w", method, c.requestTimeout, ErrRequestTimeout)
	case <-ctx.Done():
		c.unregister(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrTransportClosed
	}
}

// unregister removes a pending entry after a timeout or send failure.
// A response arriving later finds no waiter and is discarded by the
// receive loop.
func (c *Client) unregister(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// extractText joins all text content blocks into a single string.
// Non-text blocks are represented as inline markers.
func extractText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "image":
			parts = append(parts, "[image]")
		case "resource":
			parts = append(parts, "[resource]")
		default:
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}
