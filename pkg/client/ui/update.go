package ui

import (
	"fmt"

	"github.com/aeolun/auboutique/pkg/client"
	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"
)

// Update handles incoming messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case ChatPushMsg:
		return m.handleChatPush(msg.Push)

	case StateChangeMsg:
		m.handleStateChange(msg.Update)
		return m, waitForStateChange(m.agent.StateChanges())

	case resultMsg:
		if msg.login != "" {
			m.username = msg.login
			if err := m.state.SetLastUsername(msg.login); err != nil {
				m.logf("Failed to save last username: %v", err)
			}
		}
		if msg.loggedOut {
			m.username = ""
		}
		m.appendLines(msg.lines)
		return m, nil

	case notifyFailedMsg:
		m.logf("Failed to send desktop notification: %v", msg.err)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	// Header line, input border and input line
	logHeight := max(msg.Height-4, 1)
	if !m.ready {
		m.viewport = viewport.New(msg.Width, logHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = logHeight
	}
	m.input.Width = max(msg.Width-4, 10)
	m.viewport.SetContent(m.renderLog())
	m.viewport.GotoBottom()
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		line := m.input.Value()
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		return m.execute(line)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleChatPush(push *protocol.ChatPush) (tea.Model, tea.Cmd) {
	m.appendLines([]logLine{{kind: lineChat, from: push.From, text: push.Message}})
	if !m.notify {
		return m, nil
	}
	return m, notifyCmd(push)
}

// notifyCmd raises a desktop notification for a chat message
func notifyCmd(push *protocol.ChatPush) tea.Cmd {
	return func() tea.Msg {
		// Truncate message content to 100 chars for notification
		content := push.Message
		if len(content) > 100 {
			content = content[:97] + "..."
		}
		title := fmt.Sprintf("AUBoutique - %s", push.From)
		if err := beeep.Notify(title, content, ""); err != nil {
			return notifyFailedMsg{err: err}
		}
		return nil
	}
}

func (m *Model) handleStateChange(update client.ConnectionStateUpdate) {
	switch update.State {
	case client.StateTypeConnected:
		if m.connectionState != StateConnected {
			m.appendLine(lineSuccess, "Reconnected to "+m.agent.Address())
		}
		m.connectionState = StateConnected
	case client.StateTypeDisconnected:
		m.connectionState = StateDisconnected
		text := "Disconnected from server; the next command reconnects"
		if update.Err != nil {
			text = fmt.Sprintf("%s (%v)", text, update.Err)
		}
		m.appendLine(lineError, text)
	case client.StateTypeReconnecting:
		m.connectionState = StateReconnecting
		m.appendLine(lineWarning, "Reconnecting...")
	}
}
