package agent

import "time"

// ToolCallRecord describes one tool dispatch for observability. The
// loop emits these through the Reporter and returns them in the Result;
// it does not persist them beyond the current turn.
type ToolCallRecord struct {
	CallID    string
	Tool      string
	Arguments map[string]any
	Result    string
	Err       string
	Duration  time.Duration
}

// EventKind identifies the type of a reporter event.
type EventKind int

const (
	// EventToolCall fires before a tool is dispatched. Only CallID,
	// Tool, and Arguments are populated.
	EventToolCall EventKind = iota

	// EventToolResult fires after a tool dispatch completes, with
	// Result or Err and the Duration filled in.
	EventToolResult
)

// Event is a single observability event from the conversation loop.
type Event struct {
	Kind   EventKind
	Record ToolCallRecord
}

// Reporter receives loop events. Implementations render them for the
// user (the interactive console) or drop them (NopReporter). The
// reporter is injected so the loop carries no output formatting state.
type Reporter interface {
	Report(e Event)
}

// NopReporter discards all events.
type NopReporter struct{}

// Report implements Reporter.
func (NopReporter) Report(Event) {}
