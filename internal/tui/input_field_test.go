package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestNewInputField(t *testing.T) {
	field := NewInputField()

	if field == nil {
		t.Fatal("NewInputField returned nil")
	}
	if field.width != 80 {
		t.Errorf("Default width = %d, want 80", field.width)
	}
}

func TestInputField_SetWidth(t *testing.T) {
	field := NewInputField()

	field.SetWidth(120)

	if field.width != 120 {
		t.Errorf("Width after SetWidth(120) = %d, want 120", field.width)
	}
	if field.input.Width != 116 {
		t.Errorf("Input width = %d, want 116", field.input.Width)
	}
}

func TestInputField_Update_Enter_EmptyInput(t *testing.T) {
	field := NewInputField()
	field.input.SetValue("   ")

	_, cmd := field.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("Whitespace-only input should not submit")
	}
}

func TestInputField_Update_Enter_WithInput(t *testing.T) {
	field := NewInputField()
	field.input.SetValue(" entity {\"entity\":\"Invoice\"} ")

	updated, cmd := field.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Expected a submit command")
	}
	msg, ok := cmd().(LineSubmittedMsg)
	if !ok {
		t.Fatalf("Command produced %T, want LineSubmittedMsg", cmd())
	}
	if msg.Line != `entity {"entity":"Invoice"}` {
		t.Errorf("Line = %q", msg.Line)
	}
	if updated.Value() != "" {
		t.Errorf("Input not reset after submit: %q", updated.Value())
	}
}

func TestInputField_View(t *testing.T) {
	field := NewInputField()
	if field.View() == "" {
		t.Error("View returned empty string")
	}
}

func TestInputField_History(t *testing.T) {
	field := NewInputField()
	submit := func(line string) {
		t.Helper()
		field.input.SetValue(line)
		if _, cmd := field.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd == nil {
			t.Fatalf("submit %q returned no command", line)
		}
	}
	submit("entity")
	submit("run design entity")
	submit("run design entity")

	if len(field.history) != 2 {
		t.Fatalf("history = %v, want repeated line stored once", field.history)
	}

	field.input.SetValue("draft")
	steps := []struct {
		key  tea.KeyType
		want string
	}{
		{tea.KeyUp, "run design entity"},
		{tea.KeyUp, "entity"},
		{tea.KeyUp, "entity"},
		{tea.KeyDown, "run design entity"},
		{tea.KeyDown, "draft"},
		{tea.KeyDown, "draft"},
	}
	for i, s := range steps {
		field.Update(tea.KeyMsg{Type: s.key})
		if got := field.Value(); got != s.want {
			t.Errorf("step %d: Value() = %q, want %q", i, got, s.want)
		}
	}
}
