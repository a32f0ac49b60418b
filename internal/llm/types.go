// Package llm provides the completion endpoint client.
package llm

// Message represents a chat message in the conversation history.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call requested by the model.
type ToolCall struct {
	ID       string `json:"id,omitempty"` // Provider-assigned ID for tool_result correlation
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

// ChatResponse is the unified response from the completion endpoint.
// All fields use proper Go types — wire format conversion happens at
// the provider boundary (openai.go).
type ChatResponse struct {
	Model        string
	Message      Message
	FinishReason string

	// Token usage
	InputTokens  int
	OutputTokens int
}
