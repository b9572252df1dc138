package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxHistory bounds the recalled command lines.
const maxHistory = 50

// LineSubmittedMsg carries a command line entered at the prompt.
type LineSubmittedMsg struct {
	Line string
}

var promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)

var inputBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("240")).
	Padding(0, 1)

// InputField is the monitor's command line. Up and down recall earlier
// lines.
type InputField struct {
	input   textinput.Model
	width   int
	history []string
	// cursor indexes history while recalling; len(history) means the
	// line being typed.
	cursor int
	draft  string
}

// NewInputField creates a focused, empty command line.
func NewInputField() *InputField {
	ti := textinput.New()
	ti.Placeholder = "<type> [payload]  |  run <workflow> <type> [payload]"
	ti.Prompt = ""
	ti.CharLimit = 2000
	ti.Width = 60
	ti.Focus()
	return &InputField{input: ti, width: 80}
}

// SetWidth fits the field to the terminal width.
func (f *InputField) SetWidth(width int) {
	f.width = width
	f.input.Width = width - 4 // border and prompt
}

// Update submits on enter, recalls history on up/down and passes other
// keys to the text input.
func (f *InputField) Update(msg tea.Msg) (*InputField, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			return f, f.submit()
		case tea.KeyUp:
			f.recall(-1)
			return f, nil
		case tea.KeyDown:
			f.recall(1)
			return f, nil
		}
	}

	var cmd tea.Cmd
	f.input, cmd = f.input.Update(msg)
	return f, cmd
}

func (f *InputField) submit() tea.Cmd {
	line := strings.TrimSpace(f.input.Value())
	if line == "" {
		return nil
	}
	if n := len(f.history); n == 0 || f.history[n-1] != line {
		f.history = append(f.history, line)
		if len(f.history) > maxHistory {
			f.history = f.history[1:]
		}
	}
	f.cursor = len(f.history)
	f.draft = ""
	f.input.Reset()
	return func() tea.Msg { return LineSubmittedMsg{Line: line} }
}

func (f *InputField) recall(delta int) {
	next := f.cursor + delta
	if next < 0 || next > len(f.history) {
		return
	}
	if f.cursor == len(f.history) {
		f.draft = f.input.Value()
	}
	f.cursor = next
	if next == len(f.history) {
		f.input.SetValue(f.draft)
	} else {
		f.input.SetValue(f.history[next])
	}
	f.input.CursorEnd()
}

// View renders the boxed prompt.
func (f *InputField) View() string {
	return inputBox.Width(f.width - 2).Render(promptStyle.Render("> ") + f.input.View())
}

// Focus focuses the text input.
func (f *InputField) Focus() tea.Cmd {
	return f.input.Focus()
}

// Value returns the current text.
func (f *InputField) Value() string {
	return f.input.Value()
}
