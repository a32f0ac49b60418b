package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/registrarhq/registrar/internal/agent"
)

// Processor produces an answer for one user message. The agent loop
// satisfies this.
type Processor interface {
	ProcessMessage(ctx context.Context, input string) (*agent.Result, error)
}

// Interactive runs the terminal REPL: read a line, process it, print
// the answer, until EOF or an exit word.
type Interactive struct {
	in        io.Reader
	formatter *Formatter
	processor Processor
}

// NewInteractive creates a REPL session.
func NewInteractive(in io.Reader, formatter *Formatter, processor Processor) *Interactive {
	return &Interactive{in: in, formatter: formatter, processor: processor}
}

// exitWords end the session when typed alone.
var exitWords = map[string]bool{
	"quit": true,
	"exit": true,
	"bye":  true,
}

// Run processes user input until EOF, an exit word, or context
// cancellation.
func (s *Interactive) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.formatter.Prompt()
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			s.formatter.Goodbye()
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if exitWords[strings.ToLower(input)] {
			s.formatter.Goodbye()
			return nil
		}

		res, err := s.processor.ProcessMessage(ctx, input)
		if err != nil {
			s.formatter.Error(err.Error())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		s.formatter.Answer(res.Content)
	}
}
