package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/mcp"
	"github.com/codewright/codewright/internal/plan"
	"github.com/codewright/codewright/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools available to the agent",
	RunE:  runTools,
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger := newLogger(cfg)

	registry := tools.NewRegistry()
	registry.Register(tools.NewBashTool(".", cfg.Tools.ExecTimeout))
	registry.Register(tools.NewGrepTool("."))
	registry.Register(tools.NewLsTool())
	registry.Register(tools.NewTreeTool("."))
	registry.Register(tools.NewTextEditorTool())
	registry.Register(tools.NewTodoWriteTool(plan.New()))
	builtin := make(map[string]bool, len(registry.Names()))
	for _, name := range registry.Names() {
		builtin[name] = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	loaded, closeAll, err := mcp.LoadTools(ctx, cfg.MCP.ConfigPath, logger)
	if err != nil {
		fmt.Printf("MCP warning: %v\n", err)
	}
	defer closeAll()
	for _, tool := range loaded {
		registry.Register(tool)
	}

	for _, tool := range registry.List() {
		origin := ""
		if !builtin[tool.Name()] {
			origin = color.CyanString(" (mcp)")
		}
		fmt.Printf("%s%s\n    %s\n", color.YellowString(tool.Name()), origin, firstSentence(tool.Description()))
	}
	return nil
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i > 0 {
		return s[:i+1]
	}
	if len(s) > 100 {
		return s[:99] + "…"
	}
	return s
}
