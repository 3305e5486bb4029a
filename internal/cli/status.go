package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/checkpoint"
	"github.com/codewright/codewright/internal/config"
	"github.com/codewright/codewright/internal/plan"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ codewright Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Show system status, or the status of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return runSessionStatus(args[0])
		}
		runSystemStatus()
		return nil
	},
}

func runSystemStatus() {
	printHeader("📊 codewright Status")
	fmt.Printf("Version: %s\n", version)

	path, err := config.ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			fmt.Println("Config:     ✓ Found (" + path + ")")
		} else {
			fmt.Println("Config:     ✗ Not found (" + path + ")")
		}
	}

	cfg := loadConfig()
	if cfg.Provider.APIKey != "" {
		fmt.Println("API Key:    ✓ Found")
	} else {
		fmt.Println("API Key:    ✗ Not found (set provider.apiKey or OPENAI_API_KEY)")
	}

	if _, err := os.Stat(cfg.Paths.CheckpointDB); err == nil {
		fmt.Println("Checkpoint: ✓ " + cfg.Paths.CheckpointDB)
	} else {
		fmt.Println("Checkpoint: ✗ No sessions recorded yet")
	}

	if _, err := os.Stat(cfg.MCP.ConfigPath); err == nil {
		fmt.Println("MCP:        ✓ " + cfg.MCP.ConfigPath)
	} else {
		fmt.Println("MCP:        ✗ No servers configured")
	}

	if brokers := cfg.TraceBrokers(); len(brokers) > 0 {
		fmt.Printf("Trace:      ✓ %d broker(s), topic %s\n", len(brokers), cfg.Trace.Topic)
	} else {
		fmt.Println("Trace:      ✗ Disabled")
	}

	fmt.Println("Status:  Ready")
}

func runSessionStatus(id string) error {
	cfg := loadConfig()
	store, err := checkpoint.Open(cfg.Paths.CheckpointDB)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	rec, err := store.GetSession(id)
	if err != nil {
		return err
	}
	turns, err := store.LoadTurns(id)
	if err != nil {
		return err
	}

	fmt.Printf("Session: %s\n", rec.ID)
	fmt.Printf("Status:  %s\n", colorStatus(rec.Status))
	fmt.Printf("Task:    %s\n", rec.Task)
	fmt.Printf("Root:    %s\n", rec.ProjectRoot)
	fmt.Printf("Turns:   %d\n", len(turns))
	fmt.Printf("Updated: %s\n", rec.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	if items, err := store.LoadPlan(id); err == nil && len(items) > 0 {
		p := plan.New()
		if err := p.SetPlan(items); err == nil {
			fmt.Println("\nPlan:")
			fmt.Println(p.Render())
		}
	}

	if rec.FinalReport != "" {
		fmt.Println("\nReport:")
		fmt.Println(rec.FinalReport)
	}
	if rec.Status == "running" {
		fmt.Printf("\nThis session was interrupted; continue it with 'codewright resume %s'.\n", rec.ID)
	}
	return nil
}

func colorStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "failed":
		return color.RedString(status)
	case "cancelled":
		return color.YellowString(status)
	default:
		return color.CyanString(status)
	}
}
