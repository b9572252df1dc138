package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ShayCichocki/waypoint/pkg/models"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func (m *Monitor) renderHeader() string {
	up := 0
	for _, e := range m.snapshot.Endpoints {
		if e.Available {
			up++
		}
	}
	stats := fmt.Sprintf("workers %d  endpoints %d/%d  queued %d",
		len(m.snapshot.Workers), up, len(m.snapshot.Endpoints), m.snapshot.Queued)
	if m.pending > 0 {
		stats += fmt.Sprintf("  running %d", m.pending)
	}
	return titleStyle.Render("waypoint") + "  " + dimStyle.Render(stats)
}

func (m *Monitor) renderFooter() string {
	return dimStyle.Render("tab switch view • enter submit • esc quit")
}

func renderWorkers(s Snapshot) string {
	if len(s.Workers) == 0 {
		return dimStyle.Render("No workers registered.")
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("ID", "CAPABILITIES", "HEALTH", "DISPATCHED", "IN FLIGHT", "AVG LATENCY")
	for _, w := range s.Workers {
		latency := "-"
		if lm, ok := s.Latency[w.ID]; ok && lm.Successes+lm.Failures > 0 {
			latency = lm.AverageLatency.Round(time.Millisecond).String()
		}
		t.Row(w.ID, strings.Join(w.Capabilities, ","), renderHealth(w.Health),
			fmt.Sprint(w.Dispatched), fmt.Sprint(w.InFlight), latency)
	}
	return t.Render()
}

func renderHealth(h models.HealthStatus) string {
	switch h {
	case models.HealthHealthy:
		return okStyle.Render(string(h))
	case models.HealthDegraded:
		return warnStyle.Render(string(h))
	default:
		return errorStyle.Render(string(h))
	}
}

func renderEndpoints(s Snapshot) string {
	if len(s.Endpoints) == 0 {
		return dimStyle.Render("No endpoints configured.")
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("ENDPOINT", "LOCATION", "STATUS", "REASON")
	for _, e := range s.Endpoints {
		location := e.Location
		if location == "" {
			location = "(local only)"
		}
		status := okStyle.Render("available")
		if !e.Available {
			status = errorStyle.Render("unavailable")
		}
		t.Row(e.Name, location, status, e.Reason)
	}
	return t.Render()
}

// renderLogs renders the newest n entries.
func (m *Monitor) renderLogs(n int) string {
	if len(m.logs) == 0 {
		return dimStyle.Render("No events yet.")
	}
	entries := m.logs
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, dimStyle.Render(e.at.Format("15:04:05"))+" "+levelStyle(e.level).Render(fmt.Sprintf("%-6s", e.level))+" "+e.text)
	}
	return strings.Join(lines, "\n")
}

func levelStyle(level string) lipgloss.Style {
	switch level {
	case "error":
		return errorStyle
	case "warn":
		return warnStyle
	case "result":
		return okStyle
	default:
		return dimStyle
	}
}
