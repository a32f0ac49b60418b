// Package config handles registrar configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./registrar.yaml, ~/.config/registrar/registrar.yaml,
// /etc/registrar/registrar.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"registrar.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "registrar", "registrar.yaml"))
	}

	paths = append(paths, "/etc/registrar/registrar.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all registrar configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Completion CompletionConfig `yaml:"completion"`
	Chat       ChatConfig       `yaml:"chat"`
	LogLevel   string           `yaml:"log_level"`
	LogFile    string           `yaml:"log_file"`
}

// ServerConfig describes the MCP server the bridge talks to. Exactly
// one of Command or URL should be set: Command launches a subprocess
// speaking newline-delimited JSON-RPC on stdio, URL points at a
// streamable HTTP endpoint.
type ServerConfig struct {
	// Command is the executable that serves MCP over stdio.
	Command string `yaml:"command"`

	// Args are command-line arguments passed to the executable.
	Args []string `yaml:"args"`

	// Env are additional environment variables for the subprocess
	// (format: "KEY=VALUE").
	Env []string `yaml:"env"`

	// URL is a streamable HTTP MCP endpoint, used instead of Command.
	URL string `yaml:"url"`

	// Headers are extra HTTP headers for URL transports (e.g. auth).
	Headers map[string]string `yaml:"headers"`

	// RequestTimeout bounds each JSON-RPC request. Zero means the
	// default of 30 seconds.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CompletionConfig describes the OpenAI-compatible completion endpoint.
// LM Studio's local server is the default target.
type CompletionConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// ChatConfig tunes the conversation loop.
type ChatConfig struct {
	// MaxToolRounds bounds the completion/tool-dispatch cycle for a
	// single user utterance. Zero means the default of 8.
	MaxToolRounds int `yaml:"max_tool_rounds"`

	// SystemPrompt overrides the generated system message. The tool
	// inventory is appended either way.
	SystemPrompt string `yaml:"system_prompt"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		Completion: CompletionConfig{
			BaseURL:     "http://localhost:1234",
			Model:       "local-model",
			Temperature: 0.7,
			MaxTokens:   2000,
		},
		Chat: ChatConfig{
			MaxToolRounds: 8,
		},
		LogLevel: "info",
	}
}

// Validate checks for configuration mistakes that would otherwise
// surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.Server.Command == "" && c.Server.URL == "" {
		return fmt.Errorf("server.command or server.url is required")
	}
	if c.Server.Command != "" && c.Server.URL != "" {
		return fmt.Errorf("server.command and server.url are mutually exclusive")
	}
	if c.Completion.BaseURL == "" {
		return fmt.Errorf("completion.base_url is required")
	}
	if c.Chat.MaxToolRounds < 0 {
		return fmt.Errorf("chat.max_tool_rounds must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DefaultYAML is the config file written by `registrar init`.
const DefaultYAML = `# registrar configuration
#
# The bridge launches the MCP server as a subprocess and talks
# newline-delimited JSON-RPC over its stdin/stdout.
server:
  command: registrar-mcp
  args: []
  # env:
  #   - "KEY=VALUE"
  # Or connect to a remote streamable-HTTP MCP server instead:
  # url: http://localhost:8077/mcp
  request_timeout: 30s

# OpenAI-compatible completion endpoint (LM Studio by default).
completion:
  base_url: http://localhost:1234
  model: local-model
  temperature: 0.7
  max_tokens: 2000

chat:
  max_tool_rounds: 8

log_level: info
log_file: registrar.log
`
