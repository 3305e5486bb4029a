package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var resumeQuiet bool

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume an interrupted session from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

func init() {
	resumeCmd.Flags().BoolVarP(&resumeQuiet, "quiet", "q", false, "Only print the final report")
}

func runResume(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(loadConfig())
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	stop := watch(rt.bus, resumeQuiet)
	s, err := rt.mgr.Resume(ctx, args[0])
	if err != nil {
		stop()
		return err
	}
	if !resumeQuiet {
		fmt.Printf("session %s | %d turns replayed | root %s\n", s.ID(), len(s.Transcript()), s.ProjectRoot())
	}

	report, runErr := s.Wait(context.Background())
	stop()
	return printOutcome(s, report, runErr)
}
