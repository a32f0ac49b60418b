// Package agent runs the conversation loop between a completion
// endpoint and an MCP tool server: the model requests tool calls, the
// loop dispatches them, and the results flow back into the next
// completion until the model produces a plain answer.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/registrarhq/registrar/internal/llm"
	"github.com/registrarhq/registrar/internal/mcp"
)

// defaultMaxToolRounds bounds how many completion/dispatch cycles one
// user message may trigger before the loop forces a final answer.
const defaultMaxToolRounds = 8

// ToolClient is the subset of the MCP client the loop needs.
type ToolClient interface {
	ListTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// Result summarizes one processed user message.
type Result struct {
	// Content is the model's final text answer.
	Content string

	// ToolCalls lists every tool dispatch made while producing the
	// answer, in dispatch order.
	ToolCalls []ToolCallRecord

	// Rounds is the number of completion requests made.
	Rounds int
}

// Loop owns the conversation history and drives the completion/tool
// cycle. It is not safe for concurrent use; callers process one
// message at a time.
type Loop struct {
	llm      llm.Client
	tools    ToolClient
	reporter Reporter
	logger   *slog.Logger

	maxToolRounds int
	systemPrompt  string

	messages []llm.Message
	toolDefs []mcp.ToolDefinition
	toolDecl []map[string]any
	callSeq  int
	started  bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithMaxToolRounds overrides the per-message round limit.
func WithMaxToolRounds(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxToolRounds = n
		}
	}
}

// WithSystemPrompt replaces the generated system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(l *Loop) {
		l.systemPrompt = prompt
	}
}

// WithReporter installs an event reporter.
func WithReporter(r Reporter) Option {
	return func(l *Loop) {
		if r != nil {
			l.reporter = r
		}
	}
}

// NewLoop creates a conversation loop over the given completion client
// and tool client.
func NewLoop(llmClient llm.Client, tools ToolClient, logger *slog.Logger, opts ...Option) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		llm:           llmClient,
		tools:         tools,
		reporter:      NopReporter{},
		logger:        logger,
		maxToolRounds: defaultMaxToolRounds,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start discovers the server's tools and seeds the conversation with a
// system prompt describing them. It must be called once before
// ProcessMessage.
func (l *Loop) Start(ctx context.Context) error {
	defs, err := l.tools.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("discover tools: %w", err)
	}
	l.toolDefs = defs
	l.toolDecl = toolDeclarations(defs)

	prompt := l.systemPrompt
	if prompt == "" {
		prompt = buildSystemPrompt(defs)
	}
	l.messages = []llm.Message{{Role: "system", Content: prompt}}
	l.started = true

	l.logger.Info("agent ready", "tools", len(defs))
	return nil
}

// Tools returns the tool definitions discovered at Start.
func (l *Loop) Tools() []mcp.ToolDefinition {
	return l.toolDefs
}

// History returns a copy of the conversation so far.
func (l *Loop) History() []llm.Message {
	out := make([]llm.Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// ProcessMessage appends the user's input to the conversation and runs
// completion rounds until the model answers without requesting tools,
// or the round limit forces a final answer. Tool failures do not abort
// the loop: they are fed back to the model as tool results so it can
// recover or explain. Only a dead transport or a completion failure is
// fatal.
func (l *Loop) ProcessMessage(ctx context.Context, userInput string) (*Result, error) {
	if !l.started {
		return nil, errors.New("agent loop not started")
	}

	l.messages = append(l.messages, llm.Message{Role: "user", Content: userInput})

	res := &Result{}

	for round := 0; round < l.maxToolRounds; round++ {
		resp, err := l.llm.Chat(ctx, l.messages, l.toolDecl)
		if err != nil {
			return nil, fmt.Errorf("completion: %w", err)
		}
		res.Rounds++

		if len(resp.Message.ToolCalls) == 0 {
			l.messages = append(l.messages, resp.Message)
			res.Content = resp.Message.Content
			return res, nil
		}

		l.messages = append(l.messages, resp.Message)

		if err := l.dispatchBatch(ctx, resp.Message.ToolCalls, res); err != nil {
			return nil, err
		}
	}

	// Round limit reached: ask for a final answer with no tools on
	// offer so the model has to conclude.
	l.logger.Warn("tool round limit reached", "rounds", l.maxToolRounds)
	resp, err := l.llm.Chat(ctx, l.messages, nil)
	if err != nil {
		return nil, fmt.Errorf("final completion: %w", err)
	}
	res.Rounds++
	l.messages = append(l.messages, resp.Message)
	res.Content = resp.Message.Content
	return res, nil
}

// dispatchBatch runs every tool call from one assistant turn in
// emission order. Each call gets a tool-role turn in the history,
// success or failure. If the transport dies mid-batch, the remaining
// calls get synthetic failure turns so the history stays paired, and
// the error is returned as fatal.
func (l *Loop) dispatchBatch(ctx context.Context, calls []llm.ToolCall, res *Result) error {
	for i, call := range calls {
		callID := call.ID
		if callID == "" {
			l.callSeq++
			callID = fmt.Sprintf("call_%d", l.callSeq)
		}

		rec := ToolCallRecord{
			CallID:    callID,
			Tool:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
		l.reporter.Report(Event{Kind: EventToolCall, Record: rec})

		start := time.Now()
		result, err := l.tools.CallTool(ctx, call.Function.Name, call.Function.Arguments)
		rec.Duration = time.Since(start)

		if err != nil {
			rec.Err = err.Error()
			l.logger.Warn("tool call failed",
				"tool", call.Function.Name,
				"error", err,
			)
		} else {
			rec.Result = result
		}

		l.reporter.Report(Event{Kind: EventToolResult, Record: rec})
		res.ToolCalls = append(res.ToolCalls, rec)

		content := result
		if err != nil {
			content = failurePayload(err)
		}
		l.messages = append(l.messages, llm.Message{
			Role:       "tool",
			Content:    content,
			ToolCallID: callID,
		})

		if err != nil && fatalToolError(err) {
			l.abandonBatch(calls[i+1:], err, res)
			return fmt.Errorf("tool %s: %w", call.Function.Name, err)
		}
	}
	return nil
}

// abandonBatch records synthetic failure turns for tool calls that were
// never dispatched because the transport died mid-batch.
func (l *Loop) abandonBatch(remaining []llm.ToolCall, cause error, res *Result) {
	for _, call := range remaining {
		l.callSeq++
		callID := call.ID
		if callID == "" {
			callID = fmt.Sprintf("call_%d", l.callSeq)
		}
		rec := ToolCallRecord{
			CallID:    callID,
			Tool:      call.Function.Name,
			Arguments: call.Function.Arguments,
			Err:       fmt.Sprintf("not dispatched: %v", cause),
		}
		l.reporter.Report(Event{Kind: EventToolResult, Record: rec})
		res.ToolCalls = append(res.ToolCalls, rec)
		l.messages = append(l.messages, llm.Message{
			Role:       "tool",
			Content:    failurePayload(fmt.Errorf("not dispatched: %w", cause)),
			ToolCallID: callID,
		})
	}
}

// fatalToolError reports whether a tool call failure means the session
// cannot continue. Unknown tools, execution errors, and timeouts are
// recoverable; a dead transport is not.
func fatalToolError(err error) bool {
	return errors.Is(err, mcp.ErrTransportClosed) || errors.Is(err, mcp.ErrNotInitialized)
}

// failurePayload encodes a tool failure as the JSON the model sees in
// the tool-role turn.
func failurePayload(err error) string {
	b, merr := json.Marshal(map[string]any{
		"success": false,
		"error":   err.Error(),
	})
	if merr != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}

// toolDeclarations converts MCP tool definitions into the function
// declaration shape the completions API expects.
func toolDeclarations(defs []mcp.ToolDefinition) []map[string]any {
	decls := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		schema := d.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		decls = append(decls, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        d.Name,
				"description": d.Description,
				"parameters":  schema,
			},
		})
	}
	return decls
}

// buildSystemPrompt generates the default system prompt from the
// discovered tool descriptors.
func buildSystemPrompt(defs []mcp.ToolDefinition) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant with access to the following tools:\n\n")
	for _, d := range defs {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.Description)
	}
	b.WriteString("\nUse these tools when they help answer the user's question. ")
	b.WriteString("Call a tool only when you need its data; answer directly when you can. ")
	b.WriteString("When a tool reports an error, explain the problem to the user instead of retrying blindly.")
	return b.String()
}
