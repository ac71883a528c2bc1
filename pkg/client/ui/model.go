package ui

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aeolun/auboutique/pkg/client"
	"github.com/aeolun/auboutique/pkg/protocol"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ConnectionState represents the connection status shown in the status bar
type ConnectionState int

const (
	StateConnected ConnectionState = iota
	StateDisconnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// lineKind selects how a log line is styled
type lineKind int

const (
	lineInfo lineKind = iota
	lineChat
	lineSuccess
	lineWarning
	lineError
	lineSold
)

type logLine struct {
	kind lineKind
	at   time.Time
	from string // Chat lines only
	text string
}

// maxLines bounds the scrollback
const maxLines = 1000

// callTimeout bounds a single UI action, retries included
const callTimeout = 45 * time.Second

// Messages delivered to Update

// ChatPushMsg carries a chat message pushed by the server
type ChatPushMsg struct {
	Push *protocol.ChatPush
}

// StateChangeMsg carries a connection state change from the agent
type StateChangeMsg struct {
	Update client.ConnectionStateUpdate
}

// resultMsg is the outcome of a command run off the UI goroutine
type resultMsg struct {
	lines     []logLine
	login     string // Identity bound by a successful login
	loggedOut bool
}

type notifyFailedMsg struct {
	err error
}

// Model is the bubbletea model of the terminal client
type Model struct {
	agent  client.AgentInterface
	state  client.StateInterface
	logger *log.Logger

	username        string // Logged in identity, empty when logged out
	notify          bool
	connectionState ConnectionState

	lines    []logLine
	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	ready    bool
	now      func() time.Time
}

// NewModel creates the UI model around a connected agent
func NewModel(agent client.AgentInterface, state client.StateInterface, logger *log.Logger) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 4096
	input.Focus()
	if last := state.GetLastUsername(); last != "" {
		input.Placeholder = fmt.Sprintf("/login %s <password>", last)
	}

	m := Model{
		agent:           agent,
		state:           state,
		logger:          logger,
		notify:          state.NotificationsEnabled(),
		connectionState: StateConnected,
		input:           input,
		now:             time.Now,
	}
	if !agent.IsConnected() {
		m.connectionState = StateDisconnected
	}

	m.appendLine(lineInfo, fmt.Sprintf("Connected to %s. Type /help for commands.", agent.Address()))
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForStateChange(m.agent.StateChanges()))
}

func waitForStateChange(ch <-chan client.ConnectionStateUpdate) tea.Cmd {
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return nil
		}
		return StateChangeMsg{Update: update}
	}
}

// call runs fn off the UI goroutine and turns its result into a resultMsg.
func (m Model) call(fn func(ctx context.Context) resultMsg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		return fn(ctx)
	}
}

func (m *Model) appendLine(kind lineKind, text string) {
	m.lines = append(m.lines, logLine{kind: kind, at: m.now(), text: text})
	m.trimAndRefresh()
}

func (m *Model) appendLines(lines []logLine) {
	for _, l := range lines {
		if l.at.IsZero() {
			l.at = m.now()
		}
		m.lines = append(m.lines, l)
	}
	m.trimAndRefresh()
}

func (m *Model) trimAndRefresh() {
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	if m.ready {
		m.viewport.SetContent(m.renderLog())
		m.viewport.GotoBottom()
	}
}

func (m Model) logf(format string, args ...interface{}) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}

// Run starts the terminal UI and blocks until the user quits. Chat pushes
// are drained from the agent's queue every interval.
func Run(agent client.AgentInterface, state client.StateInterface, logger *log.Logger, interval time.Duration) error {
	p := tea.NewProgram(NewModel(agent, state, logger), tea.WithAltScreen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Pump(ctx, agent.Pushes(), interval, func(push *protocol.ChatPush) {
		p.Send(ChatPushMsg{Push: push})
	})

	_, err := p.Run()
	return err
}
