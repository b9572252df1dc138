package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/waypoint/internal/config"
	"github.com/ShayCichocki/waypoint/internal/state"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// catalogFileName is the catalog written by init.
const catalogFileName = "waypoint-catalog.yaml"

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a waypoint project",
	Long: `Initialize a directory for use with waypoint.

This command:
  - Creates the .waypoint directory (state database, logs, signals)
  - Writes a default worker/workflow catalog
  - Writes a .waypoint.yaml pointing at the catalog
  - Adds .waypoint/ to .gitignore when one exists

Examples:
  waypoint init              # Initialize current directory
  waypoint init ./myproject  # Initialize specific directory
  waypoint init --force      # Overwrite catalog and project config`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing catalog and project config")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}
	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing waypoint in %s...\n\n", absPath)

	projectConfig := filepath.Join(absPath, config.ProjectConfigName)
	if _, err := os.Stat(projectConfig); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	for _, sub := range []string{"logs", "signals"} {
		if err := os.MkdirAll(filepath.Join(absPath, ".waypoint", sub), 0755); err != nil {
			return fmt.Errorf("creating .waypoint/%s: %w", sub, err)
		}
	}
	printStatus("✓", "Created .waypoint directory structure", color.FgGreen)

	db, err := state.OpenProject(absPath)
	if err != nil {
		printStatus("✗", "Could not create state database", color.FgRed)
		return err
	}
	db.Close()
	printStatus("✓", "Created state database", color.FgGreen)

	catalog, err := config.DefaultCatalog().Marshal()
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(absPath, catalogFileName), catalog, 0644); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	printStatus("✓", "Created "+catalogFileName, color.FgGreen)

	if err := os.WriteFile(projectConfig, []byte(projectConfigTemplate), 0644); err != nil {
		return fmt.Errorf("writing project config: %w", err)
	}
	printStatus("✓", "Created "+config.ProjectConfigName, color.FgGreen)

	updated, err := updateGitignore(absPath)
	if err != nil {
		return fmt.Errorf("updating .gitignore: %w", err)
	}
	if updated {
		printStatus("✓", "Updated .gitignore", color.FgGreen)
	}

	fmt.Printf("\n%s waypoint initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Point remote endpoints at your counterparts (optional):")
	fmt.Println("     waypoint config gateway.endpoints.security http://localhost:9000")
	fmt.Println()
	fmt.Println("  2. Dispatch a request or run a workflow:")
	fmt.Println("     waypoint dispatch entity '{\"entity\":\"Invoice\"}'")
	fmt.Println("     waypoint workflow run design entity '{\"entity\":\"Invoice\"}'")
	fmt.Println()
	return nil
}

const projectConfigTemplate = `# waypoint project configuration
catalog: ` + catalogFileName + `

dispatch:
  pool_size: 8
  selection: historical   # or in_flight

context:
  ttl: 30m
  sweep_interval: 5m

gateway:
  timeout: 5s
  pool_size: 4
  max_queue: 256
  endpoints: {}
    # security: http://localhost:9000

# capabilities:
#   invoice: domain-entity
`

// updateGitignore appends .waypoint/ to an existing .gitignore. It reports
// whether the file changed.
func updateGitignore(dir string) (bool, error) {
	path := filepath.Join(dir, ".gitignore")
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, line := range strings.Split(string(content), "\n") {
		if strings.TrimSpace(line) == ".waypoint/" {
			return false, nil
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()

	prefix := ""
	if len(content) > 0 && !strings.HasSuffix(string(content), "\n") {
		prefix = "\n"
	}
	if _, err := f.WriteString(prefix + ".waypoint/\n"); err != nil {
		return false, err
	}
	return true, nil
}
