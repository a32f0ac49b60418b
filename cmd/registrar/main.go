// Registrar bridges a local LLM to an MCP tool server.
//
// It launches the configured MCP server as a subprocess (or connects to
// a streamable HTTP endpoint), discovers its tools, and runs a chat
// loop against an OpenAI-compatible completion endpoint such as LM
// Studio. When the model requests tool calls, registrar dispatches
// them to the server and feeds the results back until the model
// produces a final answer.
//
// Usage:
//
//	registrar chat           Start the interactive chat session
//	registrar stdio          Machine mode: JSON replies on stdout
//	registrar init [dir]     Write a default config file
//	registrar version        Print version and build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/registrarhq/registrar/internal/agent"
	"github.com/registrarhq/registrar/internal/buildinfo"
	"github.com/registrarhq/registrar/internal/config"
	"github.com/registrarhq/registrar/internal/console"
	"github.com/registrarhq/registrar/internal/llm"
	"github.com/registrarhq/registrar/internal/mcp"
)

// main constructs the OS-level environment and delegates to run so the
// full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run concurrently from tests, and the argument surface here is
// small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var noColors bool
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-no-colors" || args[i] == "--no-colors":
			noColors = true
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "chat", "":
		return runSession(ctx, stdout, stderr, configPath, noColors, false)
	case "stdio":
		return runSession(ctx, stdout, stderr, configPath, noColors, true)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runSession is the primary operating mode: load config, connect the
// MCP server and completion endpoint, and run either the interactive
// REPL or the stdio JSON loop until EOF or a shutdown signal.
func runSession(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, noColors, stdioMode bool) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, logClose, err := newLogger(stderr, cfg)
	if err != nil {
		return err
	}
	defer logClose()

	logger.Info("starting registrar",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"config", cfgPath,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- MCP transport ---
	// Stdio subprocess when a command is configured, streamable HTTP
	// when a URL is. Config validation guarantees exactly one is set.
	var transport mcp.Transport
	if cfg.Server.Command != "" {
		transport = mcp.NewStdioTransport(mcp.StdioConfig{
			Command: cfg.Server.Command,
			Args:    cfg.Server.Args,
			Env:     cfg.Server.Env,
			Logger:  logger,
		})
	} else {
		transport = mcp.NewHTTPTransport(mcp.HTTPConfig{
			URL:     cfg.Server.URL,
			Headers: cfg.Server.Headers,
			Logger:  logger,
		})
	}

	var clientOpts []mcp.ClientOption
	if cfg.Server.RequestTimeout > 0 {
		clientOpts = append(clientOpts, mcp.WithRequestTimeout(cfg.Server.RequestTimeout))
	}

	serverName := cfg.Server.Command
	if serverName == "" {
		serverName = cfg.Server.URL
	}
	client := mcp.NewClient(serverName, transport, logger, clientOpts...)

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to MCP server: %w", err)
	}
	defer client.Close()

	// --- Completion endpoint ---
	llmClient := llm.NewOpenAIClient(
		cfg.Completion.BaseURL,
		cfg.Completion.Model,
		cfg.Completion.Temperature,
		cfg.Completion.MaxTokens,
		logger,
	)
	if err := llmClient.Ping(ctx); err != nil {
		logger.Warn("completion endpoint not reachable yet", "error", err)
	}

	// --- Conversation loop ---
	var loopOpts []agent.Option
	if cfg.Chat.MaxToolRounds > 0 {
		loopOpts = append(loopOpts, agent.WithMaxToolRounds(cfg.Chat.MaxToolRounds))
	}
	if cfg.Chat.SystemPrompt != "" {
		loopOpts = append(loopOpts, agent.WithSystemPrompt(cfg.Chat.SystemPrompt))
	}

	if stdioMode {
		loop := agent.NewLoop(llmClient, client, logger, loopOpts...)
		if err := loop.Start(ctx); err != nil {
			return err
		}
		session := console.NewStdio(os.Stdin, stdout, loop, len(loop.Tools()))
		return session.Run(ctx)
	}

	formatter := console.NewFormatter(stdout, !noColors)
	loopOpts = append(loopOpts, agent.WithReporter(formatter))

	loop := agent.NewLoop(llmClient, client, logger, loopOpts...)
	if err := loop.Start(ctx); err != nil {
		return err
	}

	name, version := client.ServerInfo()
	formatter.Header(name, version, len(loop.Tools()))

	session := console.NewInteractive(os.Stdin, formatter, loop)
	err = session.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown signal received")
		return nil
	}
	return err
}

// runInit writes the default config file into dir.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "registrar.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}

	if err := os.WriteFile(path, []byte(config.DefaultYAML), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Registrar - MCP tool bridge for local LLMs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: registrar [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat         Interactive chat session (default)")
	fmt.Fprintln(w, "  stdio        Machine mode: one JSON reply per input line")
	fmt.Fprintln(w, "  init [dir]   Write a default config file (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -no-colors        Disable ANSI colors in chat output")
	fmt.Fprintln(w, "  -o, --output fmt  Output format for version: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./registrar.yaml, ~/.config/registrar/registrar.yaml,")
	fmt.Fprintln(w, "  /etc/registrar/registrar.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	return cfg, cfgPath, nil
}

// newLogger builds the session logger. Logs go to the configured log
// file, or to stderr when none is set. Stdout is never used: in chat
// mode it belongs to the user, in stdio mode to the JSON stream.
func newLogger(stderr io.Writer, cfg *config.Config) (*slog.Logger, func(), error) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	w := stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.LogFile, err)
		}
		w = f
		closeFn = func() { f.Close() }
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})
	return slog.New(handler), closeFn, nil
}
