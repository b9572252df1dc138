package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ShayCichocki/waypoint/internal/config"
	"github.com/ShayCichocki/waypoint/internal/gateway"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "waypoint",
	Short: "Capability-routed dispatch and workflow coordination",
	Long: `Waypoint routes typed requests to registered workers by capability,
composes workers into sequential, parallel and consensus workflows, keeps
per-session context, and coordinates with remote counterparts with local
fallbacks when they are unreachable.

Workers and workflows come from a YAML catalog (see 'waypoint init').`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config + .waypoint.yaml)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(dispatchCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig honors --config, otherwise searches from the working directory.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// openApp loads configuration and wires the components over HTTP.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(cfg, gateway.NewHTTPTransport())
}

// parsePayload decodes args[0] as JSON, falling back to the raw string.
func parsePayload(args []string) any {
	if len(args) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(args[0]), &v); err != nil {
		return args[0]
	}
	return v
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
