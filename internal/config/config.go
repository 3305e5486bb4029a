// Package config provides configuration types and loading for codewright.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Model, Provider, Loop, Tools, Context, MCP,
// Trace, Log.
type Config struct {
	Paths    PathsConfig    `json:"paths"`
	Model    ModelConfig    `json:"model"`
	Provider ProviderConfig `json:"provider"`
	Loop     LoopConfig     `json:"loop"`
	Tools    ToolsConfig    `json:"tools"`
	Context  ContextConfig  `json:"context"`
	MCP      MCPConfig      `json:"mcp"`
	Trace    TraceConfig    `json:"trace"`
	Log      LogConfig      `json:"log"`
}

// ---------------------------------------------------------------------------
// Paths – filesystem locations
// ---------------------------------------------------------------------------

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	StateDir     string `json:"stateDir" envconfig:"STATE_DIR"`
	CheckpointDB string `json:"checkpointDb" envconfig:"CHECKPOINT_DB"`
}

// ---------------------------------------------------------------------------
// Model – reasoning model behaviour
// ---------------------------------------------------------------------------

// ModelConfig groups reasoning model settings.
type ModelConfig struct {
	Name        string  `json:"name" envconfig:"NAME"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MAX_TOKENS"`
	Temperature float64 `json:"temperature" envconfig:"TEMPERATURE"`
}

// ---------------------------------------------------------------------------
// Provider – reasoning API endpoint & credentials
// ---------------------------------------------------------------------------

// ProviderConfig contains settings for the reasoning provider endpoint.
type ProviderConfig struct {
	APIKey  string `json:"apiKey" envconfig:"API_KEY"`
	APIBase string `json:"apiBase,omitempty" envconfig:"API_BASE"`
}

// ---------------------------------------------------------------------------
// Loop – agent loop bounds
// ---------------------------------------------------------------------------

// LoopConfig bounds the agent loop.
type LoopConfig struct {
	MaxCycles int `json:"maxCycles" envconfig:"MAX_CYCLES"`
}

// ---------------------------------------------------------------------------
// Tools – tool execution behaviour
// ---------------------------------------------------------------------------

// ToolsConfig contains tool execution settings.
type ToolsConfig struct {
	// DispatchTimeout bounds one tool call end to end.
	DispatchTimeout time.Duration `json:"dispatchTimeout" envconfig:"DISPATCH_TIMEOUT"`
	// ExecTimeout bounds one shell command inside the bash tool.
	ExecTimeout time.Duration `json:"execTimeout" envconfig:"EXEC_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Context – window bounds
// ---------------------------------------------------------------------------

// ContextConfig bounds the derived context window.
type ContextConfig struct {
	BudgetTokens        int `json:"budgetTokens" envconfig:"BUDGET_TOKENS"`
	RecentTurns         int `json:"recentTurns" envconfig:"RECENT_TURNS"`
	SummaryBudgetTokens int `json:"summaryBudgetTokens" envconfig:"SUMMARY_BUDGET_TOKENS"`
}

// ---------------------------------------------------------------------------
// MCP – external tool servers
// ---------------------------------------------------------------------------

// MCPConfig locates the external tool server declaration file.
type MCPConfig struct {
	ConfigPath string `json:"configPath" envconfig:"CONFIG_PATH"`
}

// ---------------------------------------------------------------------------
// Trace – session event publishing
// ---------------------------------------------------------------------------

// TraceConfig configures the Kafka session-event trace. Empty brokers keep
// tracing disabled.
type TraceConfig struct {
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// ---------------------------------------------------------------------------
// Log – diagnostics
// ---------------------------------------------------------------------------

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level string `json:"level" envconfig:"LEVEL"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			StateDir:     "~/.codewright",
			CheckpointDB: "~/.codewright/checkpoint.db",
		},
		Model: ModelConfig{
			Name:        "gpt-4o",
			MaxTokens:   8192,
			Temperature: 0.7,
		},
		Loop: LoopConfig{
			MaxCycles: 50,
		},
		Tools: ToolsConfig{
			DispatchTimeout: 60 * time.Second,
			ExecTimeout:     60 * time.Second,
		},
		Context: ContextConfig{
			BudgetTokens:        48000,
			RecentTurns:         6,
			SummaryBudgetTokens: 512,
		},
		MCP: MCPConfig{
			ConfigPath: "~/.codewright/mcp.json",
		},
		Trace: TraceConfig{
			Topic: "codewright.trace",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
