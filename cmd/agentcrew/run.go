package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/mtzanidakis/agentcrew/internal/executor"
	"github.com/mtzanidakis/agentcrew/internal/orchestrator"
	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/spf13/cobra"
)

var (
	runTitle       string
	runDescription string

	execAgent   string
	execTask    string
	execContext string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one orchestration for a goal and print the compiled result",
	Example: `  agentcrew run --title "Build a login page" --description "Email and password, remember me"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		out, err := a.orch.Run(ctx, orchestrator.Goal{Title: runTitle, Description: runDescription})
		if err != nil {
			return err
		}
		root, err := a.store.GetTask(out.RootTaskID)
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), out, root)
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run a single agent against an existing task",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		ag, err := a.findAgent(execAgent)
		if err != nil {
			return err
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		res, err := a.exec.RunByID(ctx, ag.ID, execTask, execContext)
		if err != nil {
			return err
		}
		if err := a.exec.Settle(execTask, res); err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), ag.Name, res)
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Process one batch of pending assigned tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.sched.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, t := range res.Tasks {
			if t.Success {
				printStatus(w, "✓", t.TaskID, color.FgGreen)
			} else {
				printStatus(w, "✗", fmt.Sprintf("%s: %s", t.TaskID, t.Result), color.FgRed)
			}
		}
		fmt.Fprintf(w, "Processed %d tasks, expired %d connections\n", res.Processed, res.Expired)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runTitle, "title", "t", "", "goal title")
	runCmd.Flags().StringVarP(&runDescription, "description", "d", "", "goal description")
	runCmd.MarkFlagRequired("title")

	executeCmd.Flags().StringVarP(&execAgent, "agent", "a", "", "agent name or id")
	executeCmd.Flags().StringVar(&execTask, "task", "", "task id")
	executeCmd.Flags().StringVar(&execContext, "context", "", "additional context for the agent")
	executeCmd.MarkFlagRequired("agent")
	executeCmd.MarkFlagRequired("task")
}

var statusColors = map[store.TaskStatus]color.Attribute{
	store.TaskCompleted:  color.FgGreen,
	store.TaskFailed:     color.FgRed,
	store.TaskReview:     color.FgYellow,
	store.TaskInProgress: color.FgBlue,
	store.TaskPending:    color.FgWhite,
}

func printOutcome(w io.Writer, out *orchestrator.Outcome, root *store.Task) {
	fmt.Fprintf(w, "%s %s\n\n", color.CyanString("Run"), out.RunID)
	if root != nil && root.Result != nil {
		fmt.Fprintln(w, *root.Result)
	} else {
		fmt.Fprintln(w, out.Result)
	}
	if len(out.Subtasks) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, st := range out.Subtasks {
		c := color.New(statusColors[st.Status])
		fmt.Fprintf(w, "  %s %s\n", c.Sprintf("%-11s", st.Status), st.Title)
	}
}

func printResult(w io.Writer, agent string, res executor.Result) {
	if res.Success {
		printStatus(w, "✓", agent+" finished in "+pluralTurns(res.Turns), color.FgGreen)
	} else {
		printStatus(w, "✗", agent+" failed", color.FgRed)
	}
	fmt.Fprintf(w, "\n%s\n\n", res.Result)
	fmt.Fprintf(w, "tokens: %d in / %d out, cost: $%.4f\n", res.InputTokens, res.OutputTokens, res.Cost)
}

func pluralTurns(n int) string {
	if n == 1 {
		return "1 turn"
	}
	return fmt.Sprintf("%d turns", n)
}
