package student

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/registrarhq/registrar/internal/buildinfo"
	"github.com/registrarhq/registrar/internal/mcp"
)

// JSON-RPC error codes the server emits.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// serverProtocolVersion is the MCP protocol version the server speaks.
const serverProtocolVersion = "2024-11-05"

// Server speaks MCP over a line-delimited JSON-RPC stream, exposing the
// student tools. It is designed to run as a subprocess with stdin and
// stdout as the stream; logs go to the injected logger, never to the
// protocol stream.
type Server struct {
	tools    *Tools
	handlers map[string]Handler
	logger   *slog.Logger

	writeMu sync.Mutex
	out     io.Writer
}

// NewServer creates an MCP server over the given tool set.
func NewServer(tools *Tools, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tools:    tools,
		handlers: tools.Handlers(),
		logger:   logger,
	}
}

// Run reads requests from in and writes responses to out until EOF or
// context cancellation. Malformed lines get a parse error response when
// possible and are otherwise skipped.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out
	reader := bufio.NewReaderSize(in, 1<<20)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			s.handleLine(line)
		}
		if err == io.EOF {
			s.logger.Info("input stream closed, shutting down")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}
	}
}

func (s *Server) handleLine(line []byte) {
	msg, err := mcp.DecodeMessage(line)
	if err != nil {
		s.logger.Warn("skipping undecodable line", "error", err)
		return
	}

	switch msg.Kind() {
	case mcp.KindRequest:
		s.handleRequest(msg)
	case mcp.KindNotification:
		// notifications/initialized and anything else: nothing to do.
		s.logger.Debug("notification received", "method", msg.Method)
	case mcp.KindResponse:
		s.logger.Debug("ignoring unexpected response", "id", *msg.ID)
	}
}

func (s *Server) handleRequest(msg *mcp.Message) {
	id := *msg.ID

	switch msg.Method {
	case "initialize":
		s.writeResult(id, map[string]any{
			"protocolVersion": serverProtocolVersion,
			"serverInfo": map[string]any{
				"name":    "registrar-mcp",
				"version": buildinfo.Version,
			},
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
		})
	case "ping":
		s.writeResult(id, map[string]any{})
	case "tools/list":
		s.writeResult(id, map[string]any{
			"tools": s.tools.Definitions(),
		})
	case "tools/call":
		s.handleToolCall(id, msg.Params)
	default:
		s.writeError(id, codeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func (s *Server) handleToolCall(id int64, params json.RawMessage) {
	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		s.writeError(id, codeInvalidParams, fmt.Sprintf("invalid tools/call params: %v", err))
		return
	}

	handler, ok := s.handlers[call.Name]
	if !ok {
		s.writeError(id, codeInvalidParams, fmt.Sprintf("unknown tool: %s", call.Name))
		return
	}

	s.logger.Info("tool call", "tool", call.Name)

	resp, err := handler(call.Arguments)
	if err != nil {
		// Storage failure: report it as a tool-level error so the
		// caller sees isError rather than a dead request.
		s.logger.Error("tool handler failed", "tool", call.Name, "error", err)
		s.writeResult(id, map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": fmt.Sprintf("tool %s failed: %v", call.Name, err)},
			},
			"isError": true,
		})
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.writeError(id, codeInternalError, fmt.Sprintf("encode result: %v", err))
		return
	}

	s.writeResult(id, map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(body)},
		},
	})
}

func (s *Server) writeResult(id int64, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.writeError(id, codeInternalError, fmt.Sprintf("encode result: %v", err))
		return
	}
	s.write(&mcp.Response{JSONRPC: "2.0", ID: id, Result: raw})
}

func (s *Server) writeError(id int64, code int, message string) {
	s.write(&mcp.Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &mcp.RPCError{Code: code, Message: message},
	})
}

// write emits one response line. Serialized so concurrent writers can
// never interleave partial lines.
func (s *Server) write(resp *mcp.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
