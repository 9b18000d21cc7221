package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/personaliz/internal/events"
	"github.com/aristath/personaliz/internal/gateway"
)

const maxActivityLines = 200

// quietOps run on every status refresh; only their failures are shown.
var quietOps = map[string]bool{
	gateway.OpStatus:                    true,
	gateway.OpCheckServiceStatus:        true,
	gateway.OpCheckToolInstalled:        true,
	gateway.OpCheckInterpreterAvailable: true,
}

// statusMsg carries a fresh availability snapshot.
type statusMsg struct {
	status gateway.ServiceStatus
	at     time.Time
}

// noteMsg adds free text to the activity log.
type noteMsg struct {
	text string
}

// ActivityPaneModel shows service availability and a rolling log of gateway
// operations.
type ActivityPaneModel struct {
	status   *gateway.ServiceStatus
	checked  time.Time
	lines    []string
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewActivityPaneModel creates an empty activity pane.
func NewActivityPaneModel() ActivityPaneModel {
	return ActivityPaneModel{viewport: viewport.New(0, 0)}
}

// Update handles messages for the activity pane.
func (m ActivityPaneModel) Update(msg tea.Msg) (ActivityPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.focused {
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case statusMsg:
		st := msg.status
		m.status = &st
		m.checked = msg.at

	case events.ServiceStatusEvent:
		m.status = &gateway.ServiceStatus{
			ServiceUp:            msg.ServiceUp,
			ToolInstalled:        msg.ToolInstalled,
			InterpreterAvailable: msg.InterpreterUp,
			ShellEnabled:         msg.ShellEnabled,
		}
		m.checked = msg.Timestamp

	case noteMsg:
		m.appendLines(strings.Split(msg.text, "\n")...)

	case events.OperationStartedEvent:
		if quietOps[msg.Op] {
			break
		}
		m.appendLines(fmt.Sprintf("%s %s %s",
			msg.Timestamp.Format(time.TimeOnly), StyleStatusRunning.Render("→"), msg.Op))

	case events.OperationCompletedEvent:
		if quietOps[msg.Op] {
			break
		}
		m.appendLines(fmt.Sprintf("%s %s %s (%s)",
			msg.Timestamp.Format(time.TimeOnly), StyleStatusComplete.Render("✓"), msg.Op, msg.Duration.Round(time.Millisecond)))

	case events.OperationFailedEvent:
		m.appendLines(fmt.Sprintf("%s %s %s [%s] %s",
			msg.Timestamp.Format(time.TimeOnly), StyleStatusFailed.Render("✗"), msg.Op, msg.Kind, gateway.Message(msg.Err)))
	}

	return m, cmd
}

func (m *ActivityPaneModel) appendLines(lines ...string) {
	m.lines = append(m.lines, lines...)
	if over := len(m.lines) - maxActivityLines; over > 0 {
		m.lines = m.lines[over:]
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// Lines returns the activity log.
func (m ActivityPaneModel) Lines() []string {
	return m.lines
}

// StatusLine renders the availability header.
func (m ActivityPaneModel) StatusLine() string {
	if m.status == nil {
		return StyleStatusPending.Render("checking services...")
	}
	mark := func(label string, ok bool) string {
		if ok {
			return StyleStatusComplete.Render("● " + label)
		}
		return StyleStatusFailed.Render("○ " + label)
	}
	parts := []string{
		mark("Ollama", m.status.ServiceUp),
		mark("OpenClaw", m.status.ToolInstalled),
		mark("Python", m.status.InterpreterAvailable),
		mark("Shell", m.status.ShellEnabled),
	}
	return strings.Join(parts, "  ")
}

// View renders the activity pane.
func (m ActivityPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	title := StyleTitle.Render("Activity")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ActivityPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-4, 10)
	m.viewport.Height = max(h-4, 3)
}

// SetFocused updates the focus state.
func (m *ActivityPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
