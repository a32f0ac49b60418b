// Registrar-mcp is the companion MCP server: a student records service
// exposed as MCP tools over stdio.
//
// It is designed to run as a subprocess of the registrar bridge (or any
// MCP client): requests arrive on stdin, responses leave on stdout, and
// all logging goes to stderr so the protocol stream stays clean.
// Records live in memory by default; pass -db to persist them in a
// SQLite database.
//
// Usage:
//
//	registrar-mcp                     In-memory store
//	registrar-mcp -db students.db     SQLite-backed store
//	registrar-mcp version             Print version information
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/registrarhq/registrar/internal/buildinfo"
	"github.com/registrarhq/registrar/internal/config"
	"github.com/registrarhq/registrar/internal/student"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, args []string) error {
	var dbPath string
	var logLevel string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-db" && i+1 < len(args):
			dbPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-db="):
			dbPath = strings.TrimPrefix(args[i], "-db=")
		case args[i] == "-log-level" && i+1 < len(args):
			logLevel = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-log-level="):
			logLevel = strings.TrimPrefix(args[i], "-log-level=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stderr)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if command == "version" {
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	}
	if command != "" {
		return fmt.Errorf("unknown command: %s", command)
	}

	if logLevel == "" {
		logLevel = "info"
	}
	level, err := config.ParseLogLevel(logLevel)
	if err != nil {
		return err
	}

	// Stdout carries the protocol stream; logs go to stderr only.
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))

	var store student.Store
	if dbPath != "" {
		store, err = student.NewSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("open student database %s: %w", dbPath, err)
		}
		logger.Info("student database opened", "path", dbPath)
	} else {
		store = student.NewMemoryStore()
		logger.Info("using in-memory student store")
	}
	defer store.Close()

	logger.Info("registrar-mcp starting", "version", buildinfo.Version)

	server := student.NewServer(student.NewTools(store), logger)
	return server.Run(ctx, stdin, stdout)
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Registrar-mcp - student records MCP server (stdio)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: registrar-mcp [flags] [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version             Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -db <path>          SQLite database path (default: in-memory)")
	fmt.Fprintln(w, "  -log-level <level>  trace, debug, info, warn, or error (default: info)")
	return nil
}
