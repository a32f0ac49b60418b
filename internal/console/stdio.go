package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// stdioReply is the JSON object emitted per input line in stdio mode.
type stdioReply struct {
	Response  string        `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp string        `json:"timestamp"`
	Metadata  stdioMetadata `json:"metadata"`
}

type stdioMetadata struct {
	ToolsAvailable int      `json:"tools_available"`
	ToolsUsed      []string `json:"tools_used"`
}

// Stdio runs the bridge in machine mode: each stdin line is one user
// message, each stdout line one JSON reply. Nothing else is written to
// stdout, so a parent process can parse the stream safely.
type Stdio struct {
	in        io.Reader
	out       io.Writer
	processor Processor
	toolCount int
}

// NewStdio creates a stdio-mode session. toolCount is reported in each
// reply's metadata.
func NewStdio(in io.Reader, out io.Writer, processor Processor, toolCount int) *Stdio {
	return &Stdio{in: in, out: out, processor: processor, toolCount: toolCount}
}

// Run reads input lines until EOF or context cancellation. Blank lines
// are skipped. Processing errors become error replies rather than
// terminating the session.
func (s *Stdio) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	enc := json.NewEncoder(s.out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		reply := stdioReply{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Metadata: stdioMetadata{
				ToolsAvailable: s.toolCount,
				ToolsUsed:      []string{},
			},
		}

		res, err := s.processor.ProcessMessage(ctx, input)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Response = res.Content
			for _, tc := range res.ToolCalls {
				reply.Metadata.ToolsUsed = append(reply.Metadata.ToolsUsed, tc.Tool)
			}
		}

		if err := enc.Encode(reply); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}
