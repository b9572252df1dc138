package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ShayCichocki/waypoint/pkg/models"
	"github.com/spf13/cobra"
)

var (
	dispatchWorker     string
	dispatchCapability string
	dispatchSession    string
	dispatchTimeout    time.Duration
	dispatchPriority   int
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <type> [payload]",
	Short: "Dispatch a single request",
	Long: `Route a request to the least-loaded healthy worker serving its capability.

The request type is mapped to a capability through the capability table.
The payload is parsed as JSON when valid, otherwise sent as a string.

Examples:
  waypoint dispatch entity '{"entity":"Invoice"}'
  waypoint dispatch security '{"api_key":"x"}' --timeout 2s
  waypoint dispatch anything "hello" --worker general`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&dispatchWorker, "worker", "", "Send to this worker, ignoring capability routing")
	dispatchCmd.Flags().StringVar(&dispatchCapability, "capability", "", "Override the capability lookup")
	dispatchCmd.Flags().StringVar(&dispatchSession, "session", "", "Session id for shared context")
	dispatchCmd.Flags().DurationVar(&dispatchTimeout, "timeout", 0, "Fail the request after this long")
	dispatchCmd.Flags().IntVar(&dispatchPriority, "priority", int(models.PriorityNormal), "Priority, 1 (highest) to 5 (lowest)")
}

func runDispatch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := buildRequest(args[0], parsePayload(args[1:]))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var resp *models.Response
	if dispatchWorker != "" {
		resp = a.dispatcher.DoTo(ctx, dispatchWorker, req)
	} else {
		resp = a.dispatcher.Do(ctx, req)
	}
	if err := printJSON(resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("dispatch failed: %s", resp.Error)
	}
	return nil
}

// buildRequest applies the dispatch flags to a new request.
func buildRequest(requestType string, payload any) *models.Request {
	req := models.NewRequest(requestType, payload)
	req.Capability = dispatchCapability
	req.SessionID = dispatchSession
	req.Timeout = dispatchTimeout
	req.Priority = models.Priority(dispatchPriority).OrDefault()
	return req
}
