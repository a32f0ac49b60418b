package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// stopGracePeriod is how long Close waits for the subprocess to exit
// after stdin is closed before killing it.
const stopGracePeriod = 5 * time.Second

// StdioConfig configures a stdio MCP transport that communicates with
// a subprocess over stdin/stdout using newline-delimited JSON-RPC.
type StdioConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments passed to the executable.
	Args []string

	// Env are additional environment variables for the subprocess
	// (format: "KEY=VALUE"). These are appended to the current
	// process environment.
	Env []string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// StdioTransport communicates with an MCP server running as a
// subprocess. JSON-RPC messages are newline-delimited on stdin/stdout.
// Stderr is drained to the log and never parsed as protocol data. A
// background goroutine reads stdout continuously so the subprocess is
// never blocked on a full pipe.
type StdioTransport struct {
	config  StdioConfig
	logger  *slog.Logger
	inbound chan *Message

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started bool
	closed  bool
}

// NewStdioTransport creates a stdio transport for the given config.
// The subprocess is not launched until Start is called.
func NewStdioTransport(cfg StdioConfig) *StdioTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		config:  cfg,
		logger:  logger,
		inbound: make(chan *Message, 16),
	}
}

// Start launches the subprocess and begins the background read loop.
func (t *StdioTransport) Start(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.started {
		return fmt.Errorf("stdio transport already started")
	}

	t.logger.Info("starting MCP subprocess",
		"command", t.config.Command,
		"args", t.config.Args,
	)

	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Env = append(os.Environ(), t.config.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &LaunchError{Command: t.config.Command, Err: err}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &LaunchError{Command: t.config.Command, Err: err}
	}

	// Capture stderr for logging — not part of the protocol.
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &LaunchError{Command: t.config.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stderrPipe.Close()
		stdout.Close()
		stdin.Close()
		return &LaunchError{Command: t.config.Command, Err: err}
	}

	t.cmd = cmd
	t.stdin = stdin
	t.started = true

	go t.drainStderr(stderrPipe)
	go t.readLoop(stdout)

	t.logger.Info("MCP subprocess started", "pid", cmd.Process.Pid)
	return nil
}

// Send marshals a request or notification and writes it as one line to
// the subprocess's stdin.
func (t *StdioTransport) Send(_ context.Context, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if !t.started {
		return fmt.Errorf("stdio transport not started")
	}

	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to subprocess stdin: %w", errors.Join(ErrTransportClosed, err))
	}

	return nil
}

// Messages returns the inbound message channel. It is closed when the
// subprocess's stdout reaches EOF or the transport is closed.
func (t *StdioTransport) Messages() <-chan *Message {
	return t.inbound
}

// readLoop reads newline-delimited messages from the subprocess's
// stdout and delivers them on the inbound channel. Lines that fail to
// decode are logged and skipped so one bad line cannot poison the
// session.
func (t *StdioTransport) readLoop(stdout io.Reader) {
	defer close(t.inbound)

	// bufio.Reader instead of Scanner: tool results can exceed
	// Scanner's default token limit.
	reader := bufio.NewReaderSize(stdout, 1<<20)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if msg, decErr := DecodeMessage(line); decErr != nil {
				t.logger.Warn("skipping undecodable line from MCP subprocess",
					"err", decErr,
				)
			} else {
				t.inbound <- msg
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				t.logger.Error("read from subprocess stdout", "err", err)
			}
			return
		}
	}
}

// drainStderr reads stderr lines and logs them at debug level.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("MCP subprocess stderr", "line", scanner.Text())
	}
}

// Close terminates the subprocess and releases resources. It closes
// stdin to request a graceful exit, waits up to stopGracePeriod, then
// kills the process. Idempotent.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if t.cmd == nil || t.cmd.Process == nil {
		// Never started: nothing to stop, but the inbound channel
		// must still close so readers do not block forever.
		close(t.inbound)
		return nil
	}

	t.logger.Info("stopping MCP subprocess", "pid", t.cmd.Process.Pid)

	// Close stdin to signal the subprocess to exit.
	if t.stdin != nil {
		t.stdin.Close()
	}

	// Wait briefly for graceful exit, then force kill. The read loop
	// exits (and closes the inbound channel) when stdout reaches EOF.
	done := make(chan error, 1)
	go func() { done <- t.cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(stopGracePeriod):
		t.logger.Warn("MCP subprocess did not exit gracefully, killing",
			"pid", t.cmd.Process.Pid,
		)
		_ = t.cmd.Process.Kill()
		<-done
		return nil
	}
}
