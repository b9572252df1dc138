package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/waypoint/internal/state"
	"github.com/ShayCichocki/waypoint/pkg/models"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusRecent int

var (
	tableBorder  = lipgloss.RoundedBorder()
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workers, endpoints, queue and dispatch history",
	Long: `Display the current state of the project.

Shows:
  - Registered workers and their health
  - Remote endpoints and their availability
  - Queued remote calls
  - Dispatch history per worker and the most recent dispatches`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusRecent, "recent", 10, "Number of recent dispatches to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Println(sectionStyle.Render("Workers"))
	fmt.Println(renderWorkers(a.registry.List()))

	fmt.Println(sectionStyle.Render("Endpoints"))
	fmt.Println(renderEndpoints(a.gateway.Endpoints()))

	queued, err := a.db.CountQueuedCalls()
	if err != nil {
		return err
	}
	if queued == 0 {
		printStatus("✓", "No queued remote calls", color.FgGreen)
	} else {
		printStatus("⚠", fmt.Sprintf("%d queued remote calls (run 'waypoint queue drain')", queued), color.FgYellow)
	}
	fmt.Println()

	summary, err := a.db.SummarizeDispatches()
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		fmt.Println("No dispatches recorded. Run 'waypoint dispatch <type>' to start.")
		return nil
	}
	fmt.Println(sectionStyle.Render("Dispatch history"))
	fmt.Println(renderSummary(summary))

	recent, err := a.db.RecentDispatches(statusRecent)
	if err != nil {
		return err
	}
	fmt.Println(sectionStyle.Render("Recent dispatches"))
	fmt.Println(renderRecent(recent))
	return nil
}

func renderWorkers(workers []models.WorkerDescriptor) string {
	t := table.New().
		Border(tableBorder).
		BorderStyle(borderStyle).
		Headers("ID", "NAME", "CAPABILITIES", "HEALTH")
	for _, w := range workers {
		t.Row(w.ID, w.Name, strings.Join(w.Capabilities, ", "), healthString(w.Health))
	}
	return t.Render()
}

func healthString(h models.HealthStatus) string {
	switch h {
	case models.HealthHealthy:
		return color.GreenString(string(h))
	case models.HealthDegraded:
		return color.YellowString(string(h))
	default:
		return color.RedString(string(h))
	}
}

func renderSummary(summary []state.DispatchSummary) string {
	t := table.New().
		Border(tableBorder).
		BorderStyle(borderStyle).
		Headers("AGENT", "TOTAL", "SUCCEEDED", "RATE")
	for _, s := range summary {
		rate := 0
		if s.Total > 0 {
			rate = s.Succeeded * 100 / s.Total
		}
		t.Row(s.AgentID, formatNumber(s.Total), formatNumber(s.Succeeded), fmt.Sprintf("%d%%", rate))
	}
	return t.Render()
}

func renderRecent(records []state.DispatchRecord) string {
	t := table.New().
		Border(tableBorder).
		BorderStyle(borderStyle).
		Headers("WHEN", "TYPE", "CAPABILITY", "AGENT", "RESULT", "LATENCY")
	for _, r := range records {
		result := color.GreenString("ok")
		if !r.Success {
			result = color.RedString(truncate(r.Error, 40))
		}
		t.Row(formatDuration(time.Since(r.CreatedAt))+" ago", r.RequestType, r.Capability, r.AgentID, result, r.Latency.String())
	}
	return t.Render()
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}

// formatNumber formats a number with commas.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	offset := len(s) % 3
	if offset > 0 {
		result.WriteString(s[:offset])
		result.WriteString(",")
	}
	for i := offset; i < len(s); i += 3 {
		result.WriteString(s[i : i+3])
		if i+3 < len(s) {
			result.WriteString(",")
		}
	}
	return result.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
