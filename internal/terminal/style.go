package terminal

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	HintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// ErrorLine renders msg as a red line on its own row.
func ErrorLine(msg string) string {
	return "\r\n" + ErrorStyle.Render(msg) + "\r\n"
}

// InfoLine terminates msg with CRLF, since the model gets raw terminal text.
func InfoLine(msg string) string {
	return msg + "\r\n"
}

func SuccessLine(msg string) string {
	return SuccessStyle.Render(msg) + "\r\n"
}

func HintLine(msg string) string {
	return HintStyle.Render(msg) + "\r\n"
}
