package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codewright/codewright/internal/agent"
	"github.com/codewright/codewright/internal/bus"
	"github.com/codewright/codewright/internal/session"
)

var (
	runRoot      string
	runModel     string
	runMaxCycles int
	runQuiet     bool
)

var runCmd = &cobra.Command{
	Use:   "run <instruction>",
	Short: "Run the agent on a task until it finishes",
	Long: "Starts an agent session for the given instruction and streams its progress.\n" +
		"The agent reasons in cycles, calling tools until it produces a final report.\n" +
		"Interrupt with Ctrl-C to cancel; the session settles at the next turn boundary\n" +
		"and can be picked up again with 'codewright resume'.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runRoot, "root", "C", "", "Project root the agent works in (default: current directory)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Override the configured model")
	runCmd.Flags().IntVar(&runMaxCycles, "max-cycles", 0, "Override the reasoning cycle ceiling")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final report")
}

func runRun(cmd *cobra.Command, args []string) error {
	instruction := strings.TrimSpace(strings.Join(args, " "))
	if instruction == "" {
		return fmt.Errorf("instruction must not be empty")
	}

	cfg := loadConfig()
	if runModel != "" {
		cfg.Model.Name = runModel
	}
	if runMaxCycles > 0 {
		cfg.Loop.MaxCycles = runMaxCycles
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	stop := watch(rt.bus, runQuiet)
	s, err := rt.mgr.Start(ctx, instruction, runRoot)
	if err != nil {
		stop()
		return err
	}
	if !runQuiet {
		fmt.Printf("session %s | model %s | root %s\n", s.ID(), cfg.Model.Name, s.ProjectRoot())
	}

	report, runErr := s.Wait(context.Background())
	stop()
	return printOutcome(s, report, runErr)
}

// watch renders live session events until the returned stop func is called.
func watch(b *bus.Bus, quiet bool) (stop func()) {
	events, unsubscribe := b.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if quiet {
			for range events {
			}
			return
		}
		renderEvents(events)
	}()
	return func() {
		unsubscribe()
		<-done
	}
}

// renderEvents prints the live session feed. Returns when the channel
// closes.
func renderEvents(events <-chan bus.Event) {
	for ev := range events {
		switch ev.Kind {
		case bus.EventAssistant:
			if content, _ := ev.Data["content"].(string); strings.TrimSpace(content) != "" {
				fmt.Println()
				fmt.Println(content)
			}
		case bus.EventToolStart:
			tool, _ := ev.Data["tool"].(string)
			fmt.Println(color.YellowString("→ %s", tool))
		case bus.EventToolEnd:
			tool, _ := ev.Data["tool"].(string)
			ms, _ := ev.Data["duration_ms"].(int64)
			if ok, _ := ev.Data["ok"].(bool); ok {
				fmt.Println(color.GreenString("✓ %s (%dms)", tool, ms))
			} else {
				failure, _ := ev.Data["failure"].(string)
				fmt.Println(color.RedString("✗ %s (%s)", tool, failure))
			}
		case bus.EventPlanUpdated:
			fmt.Println(color.CyanString("☰ plan: %v pending, %v in progress, %v completed",
				ev.Data["pending"], ev.Data["in_progress"], ev.Data["completed"]))
		case bus.EventSummarized:
			fmt.Println(color.CyanString("… condensed %v earlier turns", ev.Data["turns"]))
		case bus.EventWarning:
			fmt.Println(color.YellowString("! %v", ev.Data["warning"]))
		}
	}
}

func printOutcome(s *session.Session, report string, err error) error {
	fmt.Println()
	switch s.State() {
	case agent.StateDone:
		fmt.Println(color.GreenString("✓ session %s finished after %d cycles", s.ID(), s.Cycles()))
		if report != "" {
			fmt.Println()
			fmt.Println(report)
		}
		return nil
	case agent.StateCancelled:
		fmt.Println(color.YellowString("✗ session %s cancelled after %d cycles (resume with 'codewright resume %s')", s.ID(), s.Cycles(), s.ID()))
		return nil
	default:
		return fmt.Errorf("session %s failed: %v", s.ID(), err)
	}
}
