package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/waypoint/pkg/models"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and replay queued remote calls",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued remote calls, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		calls := a.gateway.Queue()
		if len(calls) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		fmt.Println(renderQueue(calls))
		return nil
	},
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Replay queued remote calls",
	Long: `Replay queued calls in FIFO order. The drain stops at the first failure;
the failed call stays at the front of the queue.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return drainQueue(ctx, a)
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDrainCmd)
}

func drainQueue(ctx context.Context, a *app) error {
	before := a.gateway.QueueLen()
	if before == 0 {
		return nil
	}
	n, err := a.gateway.DrainQueue(ctx)
	if n > 0 {
		printStatus("✓", fmt.Sprintf("Replayed %d of %d queued calls", n, before), color.FgGreen)
	}
	if err != nil {
		printStatus("✗", fmt.Sprintf("Drain stopped: %v", err), color.FgRed)
		return err
	}
	if n == 0 {
		printStatus("⚠", "Every endpoint is unavailable; nothing replayed", color.FgYellow)
	}
	return nil
}

func renderQueue(calls []models.QueuedCall) string {
	t := table.New().
		Border(tableBorder).
		BorderStyle(borderStyle).
		Headers("ID", "ENDPOINT", "QUEUED")
	for _, c := range calls {
		t.Row(c.ID, c.Endpoint, formatDuration(time.Since(c.EnqueuedAt))+" ago")
	}
	return t.Render()
}
