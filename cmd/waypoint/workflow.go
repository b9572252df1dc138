package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ShayCichocki/waypoint/internal/orchestrator"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	workflowSession string
	workflowVerbose bool
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "List and run catalog workflows",
}

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		workflows := a.orchestrator.Workflows()
		if len(workflows) == 0 {
			fmt.Println("No workflows in the catalog.")
			return nil
		}
		fmt.Println(renderWorkflows(workflows))
		return nil
	},
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <name> <type> [payload]",
	Short: "Run a workflow",
	Long: `Run a named workflow with a request of the given type.

Sequential workflows chain each step's data into the next step's context.
Parallel workflows merge every branch keyed by worker. Consensus workflows
additionally report conflicting branch results.

Examples:
  waypoint workflow run design entity '{"entity":"Invoice"}'
  waypoint workflow run review service '{"name":"billing"}' --session s1 -v`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runWorkflow,
}

func init() {
	workflowRunCmd.Flags().StringVar(&workflowSession, "session", "", "Session id; the workflow result is stored under workflow:<name>")
	workflowRunCmd.Flags().BoolVarP(&workflowVerbose, "verbose", "v", false, "Print workflow events as they happen")

	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowRunCmd)
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var onEvent func(orchestrator.WorkflowEvent)
	if workflowVerbose {
		onEvent = printEvent
	}
	a.drainEvents(ctx, onEvent)

	req := buildRequest(args[1], parsePayload(args[2:]))
	req.SessionID = workflowSession

	resp, err := a.orchestrator.Run(ctx, args[0], req)
	if err != nil {
		return err
	}
	if err := printJSON(resp); err != nil {
		return err
	}
	if workflowSession != "" && !a.contexts.Validate(workflowSession) {
		fmt.Fprintln(os.Stderr, color.YellowString("⚠ session %s holds inconsistent entities", workflowSession))
	}
	if !resp.Success {
		return fmt.Errorf("workflow %s failed: %s", args[0], resp.Error)
	}
	return nil
}

func printEvent(ev orchestrator.WorkflowEvent) {
	symbol := color.CyanString("•")
	switch ev.Type {
	case orchestrator.EventStepFailed:
		symbol = color.RedString("✗")
	case orchestrator.EventStepCompleted:
		symbol = color.GreenString("✓")
	case orchestrator.EventConflictDetected:
		symbol = color.YellowString("⚠")
	}

	line := fmt.Sprintf("%s %s %s", symbol, ev.Workflow, ev.Type)
	if ev.WorkerID != "" {
		line += fmt.Sprintf(" [%d:%s]", ev.Step, ev.WorkerID)
	}
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	fmt.Fprintln(os.Stderr, line)
}

func renderWorkflows(workflows []orchestrator.Workflow) string {
	t := table.New().
		Border(tableBorder).
		BorderStyle(borderStyle).
		Headers("NAME", "MODE", "WORKERS", "POLICY")
	for _, wf := range workflows {
		policy := string(wf.FailurePolicy)
		if wf.Mode != orchestrator.ModeSequential {
			policy = "-"
		} else if policy == "" {
			policy = string(orchestrator.ContinueOnFailure)
		}
		t.Row(wf.Name, string(wf.Mode), strings.Join(wf.Workers, ", "), policy)
	}
	return t.Render()
}
