// Package tui provides the interactive monitor for a running waypoint node.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/waypoint/internal/dispatch"
	"github.com/ShayCichocki/waypoint/internal/gateway"
	"github.com/ShayCichocki/waypoint/internal/orchestrator"
	"github.com/ShayCichocki/waypoint/pkg/models"
)

// maxLogEntries bounds the events tab.
const maxLogEntries = 500

// DefaultRefreshInterval is how often the monitor polls its Source.
const DefaultRefreshInterval = time.Second

// Snapshot is the state rendered by the monitor.
type Snapshot struct {
	Workers   []models.WorkerDescriptor
	Endpoints []gateway.EndpointStatus
	Queued    int
	Latency   map[string]dispatch.WorkerMetrics
}

// Source feeds the monitor and executes submitted command lines.
type Source interface {
	Snapshot() Snapshot
	Submit(ctx context.Context, line string) (string, error)
}

// EventMsg delivers a workflow event to the monitor.
type EventMsg struct {
	Event orchestrator.WorkflowEvent
}

// LogMsg appends a free-form line to the events tab.
type LogMsg struct {
	Text string
}

type tickMsg time.Time

type snapshotMsg Snapshot

type submitResultMsg struct {
	line   string
	output string
	err    error
}

type logEntry struct {
	at    time.Time
	level string
	text  string
}

// Monitor is the bubbletea model for 'waypoint monitor'.
type Monitor struct {
	ctx      context.Context
	source   Source
	interval time.Duration

	tabs  TabBar
	input *InputField

	snapshot Snapshot
	logs     []logEntry
	pending  int

	width  int
	height int
	now    func() time.Time
}

// NewMonitor creates a monitor over source. A non-positive interval uses
// DefaultRefreshInterval.
func NewMonitor(ctx context.Context, source Source, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Monitor{
		ctx:      ctx,
		source:   source,
		interval: interval,
		tabs:     NewTabBar(),
		input:    NewInputField(),
		width:    80,
		height:   24,
		now:      time.Now,
	}
}

// Init starts the refresh loop.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(m.input.Focus(), m.refresh(), m.tick())
}

func (m *Monitor) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Monitor) refresh() tea.Cmd {
	return func() tea.Msg { return snapshotMsg(m.source.Snapshot()) }
}

func (m *Monitor) submit(line string) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		out, err := m.source.Submit(ctx, line)
		return submitResultMsg{line: line, output: out, err: err}
	}
}

// Update handles messages.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "shift+tab":
			var cmd tea.Cmd
			m.tabs, cmd = m.tabs.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case LineSubmittedMsg:
		m.pending++
		m.appendLog("cmd", msg.Line)
		return m, m.submit(msg.Line)

	case submitResultMsg:
		if m.pending > 0 {
			m.pending--
		}
		if msg.err != nil {
			m.appendLog("error", fmt.Sprintf("%s: %v", msg.line, msg.err))
		} else {
			m.appendLog("result", msg.output)
		}
		return m, m.refresh()

	case EventMsg:
		m.appendLog(eventLevel(msg.Event), formatEvent(msg.Event))
		return m, nil

	case LogMsg:
		m.appendLog("info", msg.Text)
		return m, nil

	case snapshotMsg:
		m.snapshot = Snapshot(msg)
		m.syncCounts()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Monitor) appendLog(level, text string) {
	m.logs = append(m.logs, logEntry{at: m.now(), level: level, text: text})
	if over := len(m.logs) - maxLogEntries; over > 0 {
		m.logs = m.logs[over:]
	}
	m.syncCounts()
}

func (m *Monitor) syncCounts() {
	m.tabs.SetCounts(len(m.snapshot.Workers), len(m.snapshot.Endpoints), len(m.logs))
}

// View renders the monitor.
func (m *Monitor) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.tabs.View())
	b.WriteString("\n")

	switch m.tabs.Active() {
	case TabIndexWorkers:
		b.WriteString(renderWorkers(m.snapshot))
	case TabIndexEndpoints:
		b.WriteString(renderEndpoints(m.snapshot))
	case TabIndexEvents:
		b.WriteString(m.renderLogs(m.logHeight()))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

// logHeight leaves room for the header, tab bar, input box and footer.
func (m *Monitor) logHeight() int {
	return max(m.height-9, 3)
}

func eventLevel(ev orchestrator.WorkflowEvent) string {
	switch ev.Type {
	case orchestrator.EventStepFailed:
		return "error"
	case orchestrator.EventConflictDetected:
		return "warn"
	case orchestrator.EventWorkflowCompleted:
		if !ev.Success {
			return "error"
		}
	}
	return "event"
}

func formatEvent(ev orchestrator.WorkflowEvent) string {
	line := fmt.Sprintf("%s %s", ev.Workflow, ev.Type)
	if ev.WorkerID != "" {
		line += " worker=" + ev.WorkerID
	}
	if ev.Conflicts > 0 {
		line += fmt.Sprintf(" conflicts=%d", ev.Conflicts)
	}
	if ev.Duration > 0 {
		line += " in " + ev.Duration.Round(time.Millisecond).String()
	}
	if ev.Message != "" {
		line += ": " + ev.Message
	}
	return line
}
