package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/checkpoint"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions, newest first",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum number of sessions to list (0 for all)")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	store, err := checkpoint.Open(cfg.Paths.CheckpointDB)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	recs, err := store.ListSessions(sessionsLimit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No sessions recorded yet. Start one with 'codewright run'.")
		return nil
	}

	for _, rec := range recs {
		fmt.Printf("%s  %-10s %s  %s\n",
			rec.ID,
			colorStatus(rec.Status),
			rec.UpdatedAt.Local().Format("2006-01-02 15:04"),
			truncateTask(rec.Task, 60),
		)
	}
	return nil
}

func truncateTask(task string, max int) string {
	runes := []rune(task)
	if len(runes) <= max {
		return task
	}
	return string(runes[:max-1]) + "…"
}
