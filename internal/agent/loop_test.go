package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/registrarhq/registrar/internal/llm"
	"github.com/registrarhq/registrar/internal/mcp"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockLLM replays a scripted sequence of responses, recording what it
// was asked each time.
type mockLLM struct {
	responses []*llm.ChatResponse
	calls     []mockChatCall
	err       error
}

type mockChatCall struct {
	messages []llm.Message
	tools    []map[string]any
}

func (m *mockLLM) Chat(_ context.Context, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	msgs := make([]llm.Message, len(messages))
	copy(msgs, messages)
	m.calls = append(m.calls, mockChatCall{messages: msgs, tools: tools})

	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("mockLLM: no scripted responses left")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *mockLLM) Ping(context.Context) error { return nil }

// mockToolClient serves a fixed tool list and scripted call results.
type mockToolClient struct {
	defs    []mcp.ToolDefinition
	results map[string]string
	errs    map[string]error
	called  []string
}

func (m *mockToolClient) ListTools(context.Context) ([]mcp.ToolDefinition, error) {
	return m.defs, nil
}

func (m *mockToolClient) CallTool(_ context.Context, name string, _ map[string]any) (string, error) {
	m.called = append(m.called, name)
	if err, ok := m.errs[name]; ok {
		return "", err
	}
	if result, ok := m.results[name]; ok {
		return result, nil
	}
	return "", fmt.Errorf("mockToolClient: no scripted result for %s", name)
}

func textResponse(content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: "assistant", Content: content},
		FinishReason: "stop",
	}
}

func toolCallResponse(calls ...llm.ToolCall) *llm.ChatResponse {
	return &llm.ChatResponse{
		Message:      llm.Message{Role: "assistant", ToolCalls: calls},
		FinishReason: "tool_calls",
	}
}

func makeCall(id, name string, args map[string]any) llm.ToolCall {
	var tc llm.ToolCall
	tc.ID = id
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

var studentDefs = []mcp.ToolDefinition{
	{Name: "LIST_ALL_STUDENT_RECORDS", Description: "list records"},
	{Name: "GET_STUDENT_RECORD", Description: "get one record"},
	{Name: "DELETE_STUDENT_RECORD", Description: "delete one record"},
}

func startedLoop(t *testing.T, llmClient llm.Client, tools ToolClient, opts ...Option) *Loop {
	t.Helper()
	loop := NewLoop(llmClient, tools, testLogger(), opts...)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return loop
}

func TestProcessMessageDirectAnswer(t *testing.T) {
	llmMock := &mockLLM{responses: []*llm.ChatResponse{textResponse("just an answer")}}
	toolsMock := &mockToolClient{defs: studentDefs}
	loop := startedLoop(t, llmMock, toolsMock)

	res, err := loop.ProcessMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Content != "just an answer" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.Rounds != 1 || len(res.ToolCalls) != 0 {
		t.Errorf("Rounds = %d, ToolCalls = %d", res.Rounds, len(res.ToolCalls))
	}
	if len(toolsMock.called) != 0 {
		t.Errorf("tools called: %v", toolsMock.called)
	}
}

func TestProcessMessageSingleToolRound(t *testing.T) {
	llmMock := &mockLLM{responses: []*llm.ChatResponse{
		toolCallResponse(makeCall("call_x", "LIST_ALL_STUDENT_RECORDS", nil)),
		textResponse("there are 3 students"),
	}}
	toolsMock := &mockToolClient{
		defs:    studentDefs,
		results: map[string]string{"LIST_ALL_STUDENT_RECORDS": `{"success":true,"data":[1,2,3]}`},
	}
	loop := startedLoop(t, llmMock, toolsMock)

	res, err := loop.ProcessMessage(context.Background(), "how many students?")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Content != "there are 3 students" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", res.Rounds)
	}
	if len(res.ToolCalls) != 1 || res.ToolCalls[0].Tool != "LIST_ALL_STUDENT_RECORDS" {
		t.Fatalf("ToolCalls = %+v", res.ToolCalls)
	}
	if res.ToolCalls[0].CallID != "call_x" {
		t.Errorf("CallID = %q", res.ToolCalls[0].CallID)
	}

	// The second completion must see the tool turn paired to the
	// assistant's call.
	second := llmMock.calls[1].messages
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_x" {
		t.Errorf("last message before final completion = %+v", last)
	}
	if last.Content != `{"success":true,"data":[1,2,3]}` {
		t.Errorf("tool turn content = %q", last.Content)
	}
}

func TestProcessMessageBatchOrderAndSyntheticIDs(t *testing.T) {
	llmMock := &mockLLM{responses: []*llm.ChatResponse{
		toolCallResponse(
			makeCall("", "LIST_ALL_STUDENT_RECORDS", nil),
			makeCall("", "GET_STUDENT_RECORD", map[string]any{"id": "s1"}),
		),
		textResponse("done"),
	}}
	toolsMock := &mockToolClient{
		defs: studentDefs,
		results: map[string]string{
			"LIST_ALL_STUDENT_RECORDS": "list-result",
			"GET_STUDENT_RECORD":       "get-result",
		},
	}
	loop := startedLoop(t, llmMock, toolsMock)

	res, err := loop.ProcessMessage(context.Background(), "do both")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if want := []string{"LIST_ALL_STUDENT_RECORDS", "GET_STUDENT_RECORD"}; !equalStrings(toolsMock.called, want) {
		t.Errorf("dispatch order = %v, want %v", toolsMock.called, want)
	}
	if len(res.ToolCalls) != 2 {
		t.Fatalf("ToolCalls = %d", len(res.ToolCalls))
	}
	if res.ToolCalls[0].CallID == res.ToolCalls[1].CallID {
		t.Errorf("synthetic call IDs collide: %q", res.ToolCalls[0].CallID)
	}
	for _, rec := range res.ToolCalls {
		if rec.CallID == "" {
			t.Error("empty call ID not replaced")
		}
	}
}

func TestProcessMessageToolFailureContinues(t *testing.T) {
	llmMock := &mockLLM{responses: []*llm.ChatResponse{
		toolCallResponse(makeCall("call_1", "DELETE_STUDENT_RECORD", map[string]any{"id": "missing"})),
		textResponse("that record does not exist"),
	}}
	toolsMock := &mockToolClient{
		defs: studentDefs,
		errs: map[string]error{
			"DELETE_STUDENT_RECORD": &mcp.ToolExecutionError{Tool: "DELETE_STUDENT_RECORD", Message: "no such record"},
		},
	}
	loop := startedLoop(t, llmMock, toolsMock)

	res, err := loop.ProcessMessage(context.Background(), "delete missing")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Content != "that record does not exist" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.ToolCalls[0].Err == "" {
		t.Error("failure not recorded")
	}

	// The model must have seen a structured failure payload.
	second := llmMock.calls[1].messages
	last := second[len(second)-1]
	var payload struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(last.Content), &payload); err != nil {
		t.Fatalf("tool turn is not JSON: %q", last.Content)
	}
	if payload.Success || payload.Error == "" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestProcessMessageTransportDeathAbandonsBatch(t *testing.T) {
	llmMock := &mockLLM{responses: []*llm.ChatResponse{
		toolCallResponse(
			makeCall("call_1", "LIST_ALL_STUDENT_RECORDS", nil),
			makeCall("call_2", "GET_STUDENT_RECORD", map[string]any{"id": "s1"}),
		),
	}}
	toolsMock := &mockToolClient{
		defs: studentDefs,
		errs: map[string]error{
			"LIST_ALL_STUDENT_RECORDS": fmt.Errorf("tools/call: %w", mcp.ErrTransportClosed),
		},
	}
	loop := startedLoop(t, llmMock, toolsMock)

	_, err := loop.ProcessMessage(context.Background(), "do both")
	if !errors.Is(err, mcp.ErrTransportClosed) {
		t.Fatalf("error = %v, want ErrTransportClosed", err)
	}

	// Only the first call was dispatched.
	if want := []string{"LIST_ALL_STUDENT_RECORDS"}; !equalStrings(toolsMock.called, want) {
		t.Errorf("dispatched = %v, want %v", toolsMock.called, want)
	}

	// Both calls still got tool turns so the history stays paired.
	history := loop.History()
	var toolTurns []llm.Message
	for _, m := range history {
		if m.Role == "tool" {
			toolTurns = append(toolTurns, m)
		}
	}
	if len(toolTurns) != 2 {
		t.Fatalf("got %d tool turns, want 2", len(toolTurns))
	}
	if toolTurns[1].ToolCallID != "call_2" {
		t.Errorf("abandoned turn ToolCallID = %q", toolTurns[1].ToolCallID)
	}
	if !strings.Contains(toolTurns[1].Content, "not dispatched") {
		t.Errorf("abandoned turn content = %q", toolTurns[1].Content)
	}
}

func TestProcessMessageRoundLimitForcesFinalAnswer(t *testing.T) {
	llmMock := &mockLLM{responses: []*llm.ChatResponse{
		toolCallResponse(makeCall("c1", "LIST_ALL_STUDENT_RECORDS", nil)),
		toolCallResponse(makeCall("c2", "LIST_ALL_STUDENT_RECORDS", nil)),
		textResponse("best effort answer"),
	}}
	toolsMock := &mockToolClient{
		defs:    studentDefs,
		results: map[string]string{"LIST_ALL_STUDENT_RECORDS": "rows"},
	}
	loop := startedLoop(t, llmMock, toolsMock, WithMaxToolRounds(2))

	res, err := loop.ProcessMessage(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if res.Content != "best effort answer" {
		t.Errorf("Content = %q", res.Content)
	}
	if res.Rounds != 3 {
		t.Errorf("Rounds = %d, want 3", res.Rounds)
	}

	// The forced final completion must offer no tools.
	final := llmMock.calls[len(llmMock.calls)-1]
	if final.tools != nil {
		t.Errorf("final completion offered tools: %v", final.tools)
	}
}

func TestProcessMessageCompletionFailure(t *testing.T) {
	llmMock := &mockLLM{err: errors.New("endpoint down")}
	toolsMock := &mockToolClient{defs: studentDefs}
	loop := startedLoop(t, llmMock, toolsMock)

	if _, err := loop.ProcessMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected completion error")
	}
}

func TestProcessMessageBeforeStart(t *testing.T) {
	loop := NewLoop(&mockLLM{}, &mockToolClient{}, testLogger())
	if _, err := loop.ProcessMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected error before Start")
	}
}

func TestStartBuildsSystemPromptFromTools(t *testing.T) {
	llmMock := &mockLLM{responses: []*llm.ChatResponse{textResponse("ok")}}
	toolsMock := &mockToolClient{defs: studentDefs}
	loop := startedLoop(t, llmMock, toolsMock)

	history := loop.History()
	if len(history) != 1 || history[0].Role != "system" {
		t.Fatalf("history = %+v", history)
	}
	for _, def := range studentDefs {
		if !strings.Contains(history[0].Content, def.Name) {
			t.Errorf("system prompt missing tool %s", def.Name)
		}
	}
}

func TestWithSystemPromptOverride(t *testing.T) {
	llmMock := &mockLLM{}
	toolsMock := &mockToolClient{defs: studentDefs}
	loop := startedLoop(t, llmMock, toolsMock, WithSystemPrompt("custom prompt"))

	history := loop.History()
	if history[0].Content != "custom prompt" {
		t.Errorf("system prompt = %q", history[0].Content)
	}
}

func TestReporterSeesCallAndResult(t *testing.T) {
	var events []Event
	rep := reporterFunc(func(e Event) { events = append(events, e) })

	llmMock := &mockLLM{responses: []*llm.ChatResponse{
		toolCallResponse(makeCall("c1", "LIST_ALL_STUDENT_RECORDS", nil)),
		textResponse("done"),
	}}
	toolsMock := &mockToolClient{
		defs:    studentDefs,
		results: map[string]string{"LIST_ALL_STUDENT_RECORDS": "rows"},
	}
	loop := startedLoop(t, llmMock, toolsMock, WithReporter(rep))

	if _, err := loop.ProcessMessage(context.Background(), "list"); err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != EventToolCall || events[1].Kind != EventToolResult {
		t.Errorf("event kinds = %v, %v", events[0].Kind, events[1].Kind)
	}
	if events[1].Record.Result != "rows" {
		t.Errorf("result record = %+v", events[1].Record)
	}
}

type reporterFunc func(Event)

func (f reporterFunc) Report(e Event) { f(e) }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
