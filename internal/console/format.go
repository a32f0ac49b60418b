// Package console renders the bridge's interactive and stdio front
// ends: colorized terminal output for humans and line-delimited JSON
// for programs driving the bridge as a subprocess.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/registrarhq/registrar/internal/agent"
)

// ANSI escape sequences used by the formatter.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
)

// Formatter writes human-oriented output. With colors disabled every
// method emits plain text, so output stays readable in pipes and logs.
type Formatter struct {
	w      io.Writer
	colors bool
}

// NewFormatter creates a formatter writing to w.
func NewFormatter(w io.Writer, colors bool) *Formatter {
	return &Formatter{w: w, colors: colors}
}

func (f *Formatter) paint(color, s string) string {
	if !f.colors {
		return s
	}
	return color + s + ansiReset
}

func (f *Formatter) timestamp() string {
	return f.paint(ansiDim, time.Now().Format("15:04:05"))
}

// Header prints the startup banner with the server name and tool count.
func (f *Formatter) Header(serverName, serverVersion string, toolCount int) {
	line := strings.Repeat("=", 60)
	fmt.Fprintln(f.w, f.paint(ansiCyan, line))
	fmt.Fprintf(f.w, "%s\n", f.paint(ansiBold+ansiCyan, "  registrar bridge"))
	fmt.Fprintf(f.w, "  server: %s %s\n", serverName, serverVersion)
	fmt.Fprintf(f.w, "  tools:  %d available\n", toolCount)
	fmt.Fprintln(f.w, f.paint(ansiCyan, line))
	fmt.Fprintln(f.w, f.paint(ansiDim, "  type 'quit', 'exit', or 'bye' to leave"))
	fmt.Fprintln(f.w)
}

// Prompt prints the input prompt.
func (f *Formatter) Prompt() {
	fmt.Fprint(f.w, f.paint(ansiBold+ansiGreen, "you> "))
}

// Answer prints the model's final answer.
func (f *Formatter) Answer(content string) {
	fmt.Fprintf(f.w, "\n%s %s\n\n", f.paint(ansiBold+ansiBlue, "assistant>"), content)
}

// Info prints a timestamped status line.
func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "%s %s %s\n", f.timestamp(), f.paint(ansiCyan, "ℹ"), msg)
}

// Error prints a timestamped error line.
func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "%s %s %s\n", f.timestamp(), f.paint(ansiRed, "✗"), f.paint(ansiRed, msg))
}

// Goodbye prints the exit message.
func (f *Formatter) Goodbye() {
	fmt.Fprintln(f.w, f.paint(ansiDim, "\nbye."))
}

// Report implements agent.Reporter, rendering tool dispatches as they
// happen so the user can see what the model is doing.
func (f *Formatter) Report(e agent.Event) {
	switch e.Kind {
	case agent.EventToolCall:
		args := compactArgs(e.Record.Arguments)
		fmt.Fprintf(f.w, "%s %s %s%s\n",
			f.timestamp(),
			f.paint(ansiYellow, "⚙"),
			f.paint(ansiBold, e.Record.Tool),
			f.paint(ansiDim, args),
		)
	case agent.EventToolResult:
		if e.Record.Err != "" {
			fmt.Fprintf(f.w, "%s %s %s: %s\n",
				f.timestamp(),
				f.paint(ansiRed, "✗"),
				e.Record.Tool,
				f.paint(ansiRed, e.Record.Err),
			)
			return
		}
		fmt.Fprintf(f.w, "%s %s %s %s\n",
			f.timestamp(),
			f.paint(ansiGreen, "✓"),
			e.Record.Tool,
			f.paint(ansiDim, fmt.Sprintf("(%s)", e.Record.Duration.Round(time.Millisecond))),
		)
	}
}

// compactArgs renders tool arguments as a single short line for the
// dispatch trace. Long argument sets are truncated.
func compactArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	s := string(b)
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return " " + s
}
