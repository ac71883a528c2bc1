package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current view
func (m Model) View() string {
	// Don't render until we have dimensions
	if !m.ready {
		return "Loading..."
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		inputBorderStyle.Width(m.width).Render(m.input.View()),
	)
}

func (m Model) renderHeader() string {
	title := headerStyle.Render("AUBoutique")

	var conn string
	switch m.connectionState {
	case StateConnected:
		conn = successStyle.Render("● " + m.connectionState.String())
	case StateReconnecting:
		conn = warningStyle.Render("● " + m.connectionState.String())
	default:
		conn = errorStyle.Render("● " + m.connectionState.String())
	}

	user := "not logged in"
	if m.username != "" {
		user = "logged in as " + m.username
	}
	notify := "notifications off"
	if m.notify {
		notify = "notifications on"
	}

	status := statusStyle.Render(fmt.Sprintf(" %s | %s | %s ", m.agent.Address(), user, notify))
	return title + status + conn
}

// renderLog renders the scrollback shown in the viewport
func (m Model) renderLog() string {
	var b strings.Builder
	for i, l := range m.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(timeStyle.Render("[" + l.at.Format("15:04:05") + "]"))
		b.WriteByte(' ')
		b.WriteString(renderLine(l))
	}
	return b.String()
}

func renderLine(l logLine) string {
	switch l.kind {
	case lineChat:
		return authorStyle.Render(l.from+":") + " " + textStyle.Render(l.text)
	case lineSuccess:
		return successStyle.Render(l.text)
	case lineWarning:
		return warningStyle.Render(l.text)
	case lineError:
		return errorStyle.Render(l.text)
	case lineSold:
		return soldStyle.Render(l.text)
	default:
		return textStyle.Render(l.text)
	}
}
