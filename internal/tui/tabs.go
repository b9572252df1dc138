package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Views of the monitor, in tab order.
const (
	TabIndexWorkers = iota
	TabIndexEndpoints
	TabIndexEvents
)

var tabTitles = [...]string{"Workers", "Endpoints", "Events"}

var activeTabStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205")).
	Background(lipgloss.Color("236")).
	Padding(0, 2)

var inactiveTabStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("245")).
	Padding(0, 2)

var tabBarStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderBottom(true).
	BorderForeground(lipgloss.Color("238"))

// TabBar switches between the monitor views. Each tab shows the number of
// rows in its view.
type TabBar struct {
	active int
	counts [len(tabTitles)]int
}

// NewTabBar starts on the workers view.
func NewTabBar() TabBar {
	return TabBar{active: TabIndexWorkers}
}

// Update cycles with tab and shift+tab and ignores everything else.
func (t TabBar) Update(msg tea.Msg) (TabBar, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return t, nil
	}
	switch key.String() {
	case "tab":
		t.active = (t.active + 1) % len(tabTitles)
	case "shift+tab":
		t.active = (t.active + len(tabTitles) - 1) % len(tabTitles)
	}
	return t, nil
}

// SetCounts updates the row counts shown next to the titles.
func (t *TabBar) SetCounts(workers, endpoints, events int) {
	t.counts = [len(tabTitles)]int{workers, endpoints, events}
}

// Label returns the rendered title of tab i without styling.
func (t TabBar) Label(i int) string {
	return fmt.Sprintf("%s %d", tabTitles[i], t.counts[i])
}

// View renders the bar.
func (t TabBar) View() string {
	cells := make([]string, len(tabTitles))
	for i := range tabTitles {
		style := inactiveTabStyle
		if i == t.active {
			style = activeTabStyle
		}
		cells[i] = style.Render(t.Label(i))
	}
	return tabBarStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
}

// SetActive selects tab index, clamped to the valid range.
func (t *TabBar) SetActive(index int) {
	t.active = max(0, min(index, len(tabTitles)-1))
}

// Active returns the selected tab index.
func (t TabBar) Active() int {
	return t.active
}
