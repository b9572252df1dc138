package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/waypoint/internal/orchestrator"
	"github.com/ShayCichocki/waypoint/internal/tui"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the coordination loops with an interactive monitor",
	Long: `Run the same loops as 'waypoint serve' behind a terminal monitor.

The monitor shows workers, endpoints and workflow events. Lines typed at the
prompt are executed against the running node:
  <type> [payload]                     dispatch a request
  run <workflow> <type> [payload]      run a catalog workflow

Press tab to switch views and esc to quit.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var errUsage = errors.New("usage: <type> [payload] | run <workflow> <type> [payload]")

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stopLoops, err := startLoops(ctx, a)
	if err != nil {
		return err
	}
	defer stopLoops()

	p := tea.NewProgram(tui.NewMonitor(ctx, monitorSource{a: a}, 0), tea.WithAltScreen(), tea.WithContext(ctx))

	// Operational log lines would corrupt the alt screen.
	prev := log.Writer()
	log.SetOutput(programWriter{p: p})
	defer log.SetOutput(prev)

	a.drainEvents(ctx, func(ev orchestrator.WorkflowEvent) {
		p.Send(tui.EventMsg{Event: ev})
	})

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

// programWriter forwards log output to the monitor's events tab.
type programWriter struct {
	p *tea.Program
}

func (w programWriter) Write(b []byte) (int, error) {
	w.p.Send(tui.LogMsg{Text: strings.TrimRight(string(b), "\n")})
	return len(b), nil
}

// monitorSource adapts the app to the monitor.
type monitorSource struct {
	a *app
}

func (s monitorSource) Snapshot() tui.Snapshot {
	return tui.Snapshot{
		Workers:   s.a.registry.List(),
		Endpoints: s.a.gateway.Endpoints(),
		Queued:    s.a.gateway.QueueLen(),
		Latency:   s.a.dispatcher.Metrics().Workers,
	}
}

// Submit executes a monitor command line and returns the compact JSON
// response.
func (s monitorSource) Submit(ctx context.Context, line string) (string, error) {
	head, rest := cutField(line)
	if head == "" {
		return "", errUsage
	}

	var resp *models.Response
	if head == "run" {
		name, rest := cutField(rest)
		requestType, payload := cutField(rest)
		if name == "" || requestType == "" {
			return "", errUsage
		}
		var err error
		resp, err = s.a.orchestrator.Run(ctx, name, buildRequest(requestType, payloadArg(payload)))
		if err != nil {
			return "", err
		}
	} else {
		resp = s.a.dispatcher.Do(ctx, buildRequest(head, payloadArg(rest)))
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("encode output: %w", err)
	}
	if !resp.Success {
		return string(out), errors.New(resp.Error)
	}
	return string(out), nil
}

// cutField splits off the first space-separated field.
func cutField(s string) (string, string) {
	head, rest, _ := strings.Cut(strings.TrimSpace(s), " ")
	return head, strings.TrimSpace(rest)
}

func payloadArg(s string) any {
	if s == "" {
		return nil
	}
	return parsePayload([]string{s})
}
