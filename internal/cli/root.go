// Package cli implements the codewright command line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/config"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/codewright/codewright/internal/cli.version=1.2.3"
	version = "0.3.0"
	logo    = "\n" +
		"                  _                         _         _      _\n" +
		"  ___   ___    __| |  ___  __      __ _ __ (_)  __ _ | |__  | |_\n" +
		" / __| / _ \\  / _` | / _ \\ \\ \\ /\\ / /| '__|| | / _` || '_ \\ | __|\n" +
		"| (__ | (_) || (_| ||  __/  \\ V  V / | |   | || (_| || | | || |_\n" +
		" \\___| \\___/  \\__,_| \\___|   \\_/\\_/  |_|   |_| \\__, ||_| |_| \\__|\n" +
		"                                               |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "codewright",
	Short: "codewright - Autonomous Coding Agent",
	Long:  color.CyanString(logo) + "\nAn autonomous coding agent that plans, edits, and verifies changes in your repository.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(toolsCmd)
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

// loadConfig loads the configuration, degrading to defaults with a warning
// instead of refusing to start.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config warning: %v (using defaults)\n", err)
		cfg = config.DefaultConfig()
	}
	return cfg
}

// newLogger builds the process logger. Logs go to stderr so stdout stays
// clean for session output.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
