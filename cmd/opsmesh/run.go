package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/opsmesh/internal/tui"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// runEventBuffer sizes the event channel for progress output.
const runEventBuffer = 256

var (
	runName   string
	runAsync  bool
	runWatch  bool
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run <request>",
	Short: "Plan and execute an infrastructure request",
	Long: `Classify a natural-language request, build an execution plan and run it.

Tasks run in dependency order: a task starts only after every task it
depends on has completed. A failed task blocks its dependents but not
independent branches of the plan.

Progress is printed as tasks start and finish. Use --watch for a live
view of the plan instead, and --output json or yaml to print the final
plan in a machine-readable form.

Examples:
  opsmesh run "Deploy a web application with EC2 instances and S3 storage"
  opsmesh run --name web-v2 --watch "deploy v2 and add a cloudwatch alert"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	runCmd.Flags().StringVar(&runName, "name", "", "Plan name (default: derived from the request)")
	runCmd.Flags().BoolVar(&runAsync, "async", false, "Run the plan in the background and report its submission before waiting")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Show a live view of the plan while it runs")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "text", "Output format: text, json or yaml")
}

func runRequest(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(runOutput)
	if err != nil {
		return err
	}
	request := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Progress lines only make sense for text output without the live view.
	progress := format == outputText && !runWatch
	opts := appOptions{}
	if progress {
		opts.eventBuffer = runEventBuffer
	}
	a, err := newApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	plan, err := a.orch.CreatePlan(ctx, request, runName)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}

	var printed chan struct{}
	if progress {
		printed = make(chan struct{})
		go func() {
			defer close(printed)
			for ev := range a.orch.Events() {
				printEvent(out, ev)
			}
		}()
	}

	final, err := execute(ctx, a, plan, out, format)
	if progress {
		// Closing the orchestrator closes the event channel.
		a.orch.Close()
		<-printed
	}
	if err != nil {
		return err
	}

	if err := printPlan(out, final, format); err != nil {
		return err
	}
	if final.Status == models.PlanStatusFailed {
		return fmt.Errorf("plan %s failed", final.ID)
	}
	return nil
}

// execute runs plan according to the --async and --watch flags and returns
// its terminal state.
func execute(ctx context.Context, a *app, plan *models.ExecutionPlan, out io.Writer, format outputFormat) (*models.ExecutionPlan, error) {
	if !runAsync && !runWatch {
		return a.orch.Execute(ctx, plan)
	}

	h, err := a.orch.ExecuteAsync(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("submit plan: %w", err)
	}
	if runAsync && format == outputText {
		printStatus(out, "→", fmt.Sprintf("Plan %s submitted for processing", h.PlanID()), color.FgCyan)
	}

	if runWatch {
		if _, err := tui.Watch(ctx, h.PlanID(), a.orch.GetPlanStatus, a.cfg.TUI.RefreshRate); err != nil {
			return nil, err
		}
	}

	final, err := h.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("wait for plan %s: %w", h.PlanID(), err)
	}
	return final, nil
}
