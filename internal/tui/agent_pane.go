package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/personaliz/internal/gateway"
	"github.com/aristath/personaliz/internal/persistence"
)

// Requests the agent pane sends to the root model.
type (
	newAgentRequestMsg    struct{}
	installRequestMsg     struct{}
	deleteAgentRequestMsg struct{ id string }
	logsRequestMsg        struct{ id string }
	runAgentRequestMsg    struct {
		agent   *persistence.Agent
		sandbox bool
	}
)

// Results delivered back to the agent pane.
type (
	agentsLoadedMsg struct {
		agents []*persistence.Agent
		err    error
	}
	agentLogsMsg struct {
		id   string
		logs []persistence.AgentLog
		err  error
	}
	agentRunMsg struct {
		id    string
		agent *persistence.Agent
		err   error
	}
)

// AgentPaneModel lists the configured agents beside the selected agent's logs.
type AgentPaneModel struct {
	agents      []*persistence.Agent
	running     map[string]bool
	selectedIdx int
	logs        []persistence.AgentLog
	logsFor     string
	notice      string
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewAgentPaneModel creates an empty agent pane.
func NewAgentPaneModel() AgentPaneModel {
	return AgentPaneModel{
		running:  make(map[string]bool),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the agent pane.
func (m AgentPaneModel) Update(msg tea.Msg) (AgentPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.agents)-1 {
				m.selectedIdx++
				return m, m.requestLogs()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				return m, m.requestLogs()
			}
		case KeyNewAgent:
			return m, emit(newAgentRequestMsg{})
		case KeyInstall:
			return m, emit(installRequestMsg{})
		case KeyRunSandbox, KeyRunLive:
			agent := m.Selected()
			if agent == nil || m.running[agent.ID] {
				break
			}
			m.running[agent.ID] = true
			m.notice = ""
			return m, emit(runAgentRequestMsg{agent: agent, sandbox: msg.String() == KeyRunSandbox})
		case KeyDeleteAgent:
			if agent := m.Selected(); agent != nil && !m.running[agent.ID] {
				return m, emit(deleteAgentRequestMsg{id: agent.ID})
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case agentsLoadedMsg:
		if msg.err != nil {
			m.notice = "Could not load agents: " + msg.err.Error()
			break
		}
		m.agents = msg.agents
		if m.selectedIdx >= len(m.agents) {
			m.selectedIdx = max(len(m.agents)-1, 0)
		}
		return m, m.requestLogs()

	case agentLogsMsg:
		if msg.id != m.selectedID() {
			break
		}
		if msg.err != nil {
			m.notice = "Could not load logs: " + msg.err.Error()
			break
		}
		m.logs = msg.logs
		m.logsFor = msg.id
		m.updateViewportContent()

	case agentRunMsg:
		delete(m.running, msg.id)
		if msg.err != nil {
			m.notice = "Run failed: " + gateway.Message(msg.err)
		} else if msg.agent != nil {
			for i, a := range m.agents {
				if a.ID == msg.id {
					m.agents[i] = msg.agent
				}
			}
		}
		if msg.id == m.selectedID() {
			return m, m.requestLogs()
		}
	}

	return m, cmd
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m AgentPaneModel) requestLogs() tea.Cmd {
	id := m.selectedID()
	if id == "" {
		return nil
	}
	return emit(logsRequestMsg{id: id})
}

// Selected returns the highlighted agent, or nil when the list is empty.
func (m AgentPaneModel) Selected() *persistence.Agent {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.agents) {
		return m.agents[m.selectedIdx]
	}
	return nil
}

func (m AgentPaneModel) selectedID() string {
	if a := m.Selected(); a != nil {
		return a.ID
	}
	return ""
}

// View renders the agent pane.
func (m AgentPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderAgentList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m AgentPaneModel) renderAgentList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Agents")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.agents) == 0 {
		b.WriteString(StyleStatusPending.Render("No agents yet. Press n."))
	}
	for i, agent := range m.agents {
		name := agent.Name
		if len(name) > width-6 {
			name = name[:width-9] + "..."
		}
		line := fmt.Sprintf("%s %s", m.StatusIcon(agent), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.notice != "" {
		b.WriteString("\n")
		b.WriteString(StyleStatusFailed.Width(width).Render(m.notice))
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled indicator for the agent's state.
func (m AgentPaneModel) StatusIcon(agent *persistence.Agent) string {
	if m.running[agent.ID] {
		return StyleStatusRunning.Render("●")
	}
	switch agent.Status {
	case persistence.AgentActive:
		return StyleStatusComplete.Render("✓")
	case persistence.AgentPaused:
		return StyleStatusFailed.Render("‖")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m *AgentPaneModel) updateViewportContent() {
	agent := m.Selected()
	if agent == nil {
		m.viewport.SetContent("")
		return
	}

	var b strings.Builder
	b.WriteString(StyleHeader.Render(agent.Name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Role: %s\nGoal: %s\nSchedule: %s\n", agent.Role, agent.Goal, agent.Schedule)
	if len(agent.Tools) > 0 {
		fmt.Fprintf(&b, "Tools: %s\n", strings.Join(agent.Tools, ", "))
	}
	if agent.LastRun != nil {
		fmt.Fprintf(&b, "Last run: %s\n", agent.LastRun.Format(time.DateTime))
	}
	if agent.NextRun != nil {
		fmt.Fprintf(&b, "Next run: %s\n", agent.NextRun.Format(time.DateTime))
	}
	b.WriteString("\n")

	if m.logsFor == agent.ID {
		for _, l := range m.logs {
			fmt.Fprintf(&b, "%s %s %s\n",
				l.Timestamp.Format(time.TimeOnly),
				levelStyle(string(l.Level)).Render(fmt.Sprintf("%-7s", l.Level)),
				l.Message)
		}
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m *AgentPaneModel) resizeViewport() {
	listWidth := 28
	m.viewport.Width = max(m.width-listWidth-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *AgentPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *AgentPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
