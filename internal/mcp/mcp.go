// Package mcp connects external Model Context Protocol servers and exposes
// their tools to the agent. Servers are declared in a JSON file using the
// common mcpServers layout and run as child processes speaking JSON-RPC
// over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
)

// ServerConfig declares how to launch one server.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Config is the on-disk server declaration file.
type Config struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads the declaration file. A missing file means no servers
// are configured and is not an error.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Tool adapts one remote tool to the registry's tool interface.
type Tool struct {
	client *Client
	info   ToolInfo
}

func (t *Tool) Name() string { return t.info.Name }

func (t *Tool) Description() string {
	if t.info.Description == "" {
		return fmt.Sprintf("Tool provided by the %s MCP server.", t.client.Server())
	}
	return t.info.Description
}

func (t *Tool) Parameters() map[string]any {
	if t.info.InputSchema == nil {
		return map[string]any{"type": "object"}
	}
	return t.info.InputSchema
}

func (t *Tool) Execute(ctx context.Context, params map[string]any) (string, error) {
	return t.client.CallTool(ctx, t.info.Name, params)
}

// LoadTools connects every configured server and returns the adapted tools
// plus a shutdown func for the server processes. A server that fails to
// connect or list is skipped with a warning; the rest still load.
func LoadTools(ctx context.Context, path string, logger *slog.Logger) ([]*Tool, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, func() {}, err
	}

	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		loaded  []*Tool
		clients []*Client
	)
	for _, name := range names {
		client, err := Connect(ctx, name, cfg.Servers[name])
		if err != nil {
			logger.Warn("skipping mcp server", "server", name, "error", err)
			continue
		}
		infos, err := client.ListTools(ctx)
		if err != nil {
			logger.Warn("skipping mcp server", "server", name, "error", err)
			_ = client.Close()
			continue
		}
		clients = append(clients, client)
		for _, info := range infos {
			loaded = append(loaded, &Tool{client: client, info: info})
		}
		logger.Info("mcp server connected", "server", name, "tools", len(infos))
	}

	closeAll := func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}
	return loaded, closeAll, nil
}
