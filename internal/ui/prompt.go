// internal/ui/prompt.go

package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type promptModel struct {
	title    string
	info     string
	input    textinput.Model
	errMsg   string
	done     bool
	quitting bool
}

func newPromptModel(title, info string) promptModel {
	pi := textinput.New()
	pi.Placeholder = "password"
	pi.EchoMode = textinput.EchoPassword
	pi.CharLimit = 256
	pi.Focus()
	return promptModel{title: title, info: info, input: pi}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.input.Value() == "" {
				m.errMsg = "Password cannot be empty"
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.quitting {
		return ""
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render(m.title),
		"",
		DescriptionStyle.Render(m.info),
		"",
		InputStyle.Render(m.input.View()),
		"",
		ButtonStyle.Render("ENTER")+" - confirm    "+ButtonStyle.Render("ESC")+" - cancel",
	)
	if m.errMsg != "" {
		content += "\n\n" + ErrorStyle.Render(m.errMsg)
	}
	return WindowStyle.Render(content) + "\n"
}

// PromptSecret pyta o hasło bez echa, np. hasło główne do kluczy
func PromptSecret(title, info string) (string, error) {
	final, err := tea.NewProgram(newPromptModel(title, info)).Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %v", err)
	}
	m := final.(promptModel)
	if !m.done {
		return "", ErrCancelled
	}
	return m.input.Value(), nil
}
