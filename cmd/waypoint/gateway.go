package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/waypoint/internal/gateway"
	"github.com/ShayCichocki/waypoint/pkg/models"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Inspect and drive remote coordination",
}

var gatewayStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show endpoint availability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println(renderEndpoints(a.gateway.Endpoints()))
		return nil
	},
}

var gatewayCallQueue bool

var gatewayCallCmd = &cobra.Command{
	Use:   "call <endpoint> [payload]",
	Short: "Run a coordination operation",
	Long: `Run the coordination operation of an endpoint. When the counterpart is
unreachable the result is computed locally and flagged as a fallback. With
--queue a fallback call is also queued for replay; only endpoints with a
location can be queued, and the queue is bounded.

Endpoints: requirements, architecture, security, contracts, bridge, testing.

Examples:
  waypoint gateway call requirements '{"requirements":"login; logout"}'
  waypoint gateway call security '{"config":{"db_password":"x"}}'`,
	Args: cobra.RangeArgs(1, 2),
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
		result, queued, err := callEndpoint(ctx, a, args[0], parsePayload(args[1:]), gatewayCallQueue)
		if err != nil {
			return err
		}
		if result.Fallback {
			printStatus("⚠", fmt.Sprintf("%s answered locally (%s)", args[0], result.Cause), color.FgYellow)
		}
		if gatewayCallQueue && result.Fallback {
			if queued.err != nil {
				printStatus("✗", fmt.Sprintf("not queued: %v", queued.err), color.FgRed)
			} else {
				printStatus("↻", fmt.Sprintf("queued for replay as %s", queued.call.ID), color.FgCyan)
			}
		}
		return printJSON(result)
	},
}

// queueOutcome reports what happened to a fallback call sent with --queue.
type queueOutcome struct {
	call models.QueuedCall
	err  error
}

// callEndpoint runs an endpoint's operation and, when queue is set and the
// answer came from the local fallback, queues the call for replay.
func callEndpoint(ctx context.Context, a *app, name string, payload any, queue bool) (gateway.Result, queueOutcome, error) {
	result, err := a.gateway.Run(ctx, name, payload)
	if err != nil {
		return gateway.Result{}, queueOutcome{}, err
	}
	var out queueOutcome
	if queue && result.Fallback {
		out.call, out.err = a.gateway.Enqueue(name, payload)
	}
	return result, out, nil
}

var gatewaySignalCmd = &cobra.Command{
	Use:   "signal <reset|offline>",
	Short: "Flip endpoint availability for running waypoint processes",
	Long: `Write a signal file picked up by every process watching the signals
directory. "reset" marks all endpoints available, "offline" marks them
unavailable.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{gateway.SignalReset, gateway.SignalOffline},
	RunE: func(cmd *cobra.Command, args []string) error {
		signal := strings.ToLower(args[0])
		if signal != gateway.SignalReset && signal != gateway.SignalOffline {
			return fmt.Errorf("unknown signal %q (want %s or %s)", args[0], gateway.SignalReset, gateway.SignalOffline)
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := gateway.Send(cfg.SignalsDir(), signal); err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("Sent %s signal to %s", signal, cfg.SignalsDir()), color.FgGreen)
		return nil
	},
}

func init() {
	gatewayCmd.AddCommand(gatewayStatusCmd)
	gatewayCmd.AddCommand(gatewayCallCmd)
	gatewayCmd.AddCommand(gatewaySignalCmd)

	gatewayCallCmd.Flags().BoolVar(&gatewayCallQueue, "queue", false, "Queue the call for replay when it falls back")
}

func renderEndpoints(endpoints []gateway.EndpointStatus) string {
	t := table.New().
		Border(tableBorder).
		BorderStyle(borderStyle).
		Headers("ENDPOINT", "LOCATION", "STATE", "REASON")
	for _, ep := range endpoints {
		location := ep.Location
		if location == "" {
			location = "(local only)"
		}
		st := color.GreenString("available")
		if !ep.Available {
			st = color.RedString("unavailable")
		}
		t.Row(ep.Name, location, st, ep.Reason)
	}
	return t.Render()
}
