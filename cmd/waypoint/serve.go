package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ShayCichocki/waypoint/internal/gateway"
	"github.com/ShayCichocki/waypoint/internal/orchestrator"
	"github.com/ShayCichocki/waypoint/internal/registry"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	serveDrainInterval  time.Duration
	serveHealthInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background coordination loops until interrupted",
	Long: `Run the long-lived parts of waypoint:
  - context store sweep of expired session entries
  - registry health refresh
  - gateway signal watcher (see 'waypoint gateway signal')
  - periodic replay of queued remote calls

Stops on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	for _, c := range []*cobra.Command{serveCmd, monitorCmd} {
		c.Flags().DurationVar(&serveDrainInterval, "drain-interval", 30*time.Second, "How often to replay queued remote calls")
		c.Flags().DurationVar(&serveHealthInterval, "health-interval", 30*time.Second, "How often to refresh worker health")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.drainEvents(ctx, func(ev orchestrator.WorkflowEvent) {
		a.logger.Log("event %s workflow=%s worker=%s", ev.Type, ev.Workflow, ev.WorkerID)
	})

	stopLoops, err := startLoops(ctx, a)
	if err != nil {
		return err
	}
	defer stopLoops()

	printStatus("✓", fmt.Sprintf("Serving %d workers, %d workflows", a.registry.Count(), len(a.orchestrator.Workflows())), color.FgGreen)
	printStatus("•", fmt.Sprintf("Signals: %s", a.cfg.SignalsDir()), color.FgCyan)

	<-ctx.Done()
	printStatus("•", "Shutting down", color.FgCyan)
	return nil
}

// startLoops starts the context sweep, health refresh, signal watcher and
// queue replay. The returned func stops all of them.
func startLoops(ctx context.Context, a *app) (func(), error) {
	watcher, err := gateway.NewSignalWatcher(a.cfg.SignalsDir(), a.gateway)
	if err != nil {
		return nil, err
	}

	a.contexts.Start(ctx)
	health := registry.NewHealthMonitor(a.registry, serveHealthInterval)
	health.Start(ctx)

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		drainLoop(loopCtx, a.gateway, serveDrainInterval)
	}()

	return func() {
		cancel()
		<-done
		watcher.Close()
		health.Stop()
		a.contexts.Stop()
	}, nil
}

func drainLoop(ctx context.Context, g *gateway.Gateway, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if g.QueueLen() == 0 {
				continue
			}
			if n, err := g.DrainQueue(ctx); err != nil {
				log.Printf("[waypoint] drain stopped after %d calls: %v", n, err)
			} else if n > 0 {
				log.Printf("[waypoint] replayed %d queued calls", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
