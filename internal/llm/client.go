package llm

import "context"

// Client is the interface the orchestrator uses to talk to a
// completion endpoint.
type Client interface {
	// Chat sends the full conversation plus the tool declarations the
	// model may request, and returns the assistant's next turn. It
	// does not retry: retry policy belongs to the caller.
	Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks if the endpoint is reachable.
	Ping(ctx context.Context) error
}
