package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codewright/codewright/internal/bus"
	"github.com/codewright/codewright/internal/checkpoint"
	"github.com/codewright/codewright/internal/config"
	"github.com/codewright/codewright/internal/provider"
	"github.com/codewright/codewright/internal/session"
	"github.com/codewright/codewright/internal/trace"
	"github.com/codewright/codewright/internal/transcript"
)

// runtime holds the wired collaborators for one CLI invocation.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *checkpoint.Store
	bus    *bus.Bus
	relay  *trace.Relay
	mgr    *session.Manager
}

// newRuntime wires provider, checkpoint store, event bus, optional trace
// relay, and the session manager from the given config.
func newRuntime(cfg *config.Config) (*runtime, error) {
	logger := newLogger(cfg)

	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no API key configured: set provider.apiKey in the config file or export OPENAI_API_KEY")
	}
	prov := provider.NewOpenAIProvider(cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Model.Name)

	store, err := checkpoint.Open(cfg.Paths.CheckpointDB)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		store:  store,
		bus:    bus.New(),
	}
	if brokers := cfg.TraceBrokers(); len(brokers) > 0 {
		rt.relay = trace.NewRelay(rt.bus, trace.NewPublisher(brokers, cfg.Trace.Topic), logger)
		rt.relay.Start(context.Background())
	}

	rt.mgr = session.NewManager(session.Options{
		Provider:    prov,
		Store:       store,
		Bus:         rt.bus,
		Logger:      logger,
		Model:       cfg.Model.Name,
		MaxCycles:   cfg.Loop.MaxCycles,
		MaxTokens:   cfg.Model.MaxTokens,
		Temperature: cfg.Model.Temperature,
		Window: transcript.WindowOptions{
			BudgetTokens:        cfg.Context.BudgetTokens,
			RecentTurns:         cfg.Context.RecentTurns,
			SummaryBudgetTokens: cfg.Context.SummaryBudgetTokens,
		},
		ToolTimeout: cfg.Tools.DispatchTimeout,
		BashTimeout: cfg.Tools.ExecTimeout,
		MCPConfig:   cfg.MCP.ConfigPath,
	})
	return rt, nil
}

// Close flushes the trace relay and releases the store.
func (rt *runtime) Close() {
	if rt.relay != nil {
		rt.relay.Stop()
	}
	rt.bus.Close()
	if rt.store != nil {
		rt.store.Close()
	}
}
