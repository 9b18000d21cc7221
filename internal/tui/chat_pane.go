package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/personaliz/internal/gateway"
	"github.com/aristath/personaliz/internal/ollama"
)

// chatSubmitMsg asks the root model to send text with the prior history.
type chatSubmitMsg struct {
	text    string
	history []ollama.Message
}

// chatReplyMsg carries the assistant's answer or the failure.
type chatReplyMsg struct {
	reply string
	err   error
}

// ChatPaneModel is the assistant conversation: a scrollback viewport above a
// single-line input.
type ChatPaneModel struct {
	viewport viewport.Model
	input    textinput.Model
	history  []ollama.Message
	notice   string // last error, shown below the conversation
	pending  bool
	width    int
	height   int
	focused  bool
}

// NewChatPaneModel creates an empty chat pane.
func NewChatPaneModel() ChatPaneModel {
	ti := textinput.New()
	ti.Placeholder = "Ask the assistant to set up an automation..."
	ti.Prompt = "> "
	ti.CharLimit = 4000

	return ChatPaneModel{
		viewport: viewport.New(0, 0),
		input:    ti,
	}
}

// Update handles messages for the chat pane.
func (m ChatPaneModel) Update(msg tea.Msg) (ChatPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyEnter:
			return m.submit()
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
		default:
			m.input, cmd = m.input.Update(msg)
		}

	case chatReplyMsg:
		m.pending = false
		if msg.err != nil {
			m.notice = "Error: " + gateway.Message(msg.err)
			// The failed turn is not sent again with the next message.
			if n := len(m.history); n > 0 && m.history[n-1].Role == ollama.RoleUser {
				m.history = m.history[:n-1]
			}
		} else {
			m.notice = ""
			m.history = append(m.history, ollama.Message{Role: ollama.RoleAssistant, Content: msg.reply})
		}
		m.refresh()
	}

	return m, cmd
}

func (m ChatPaneModel) submit() (ChatPaneModel, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.pending {
		return m, nil
	}

	prior := make([]ollama.Message, len(m.history))
	copy(prior, m.history)

	m.history = append(m.history, ollama.Message{Role: ollama.RoleUser, Content: text})
	m.input.SetValue("")
	m.pending = true
	m.notice = ""
	m.refresh()

	return m, func() tea.Msg {
		return chatSubmitMsg{text: text, history: prior}
	}
}

// SetHistory replaces the conversation, e.g. with a restored transcript.
func (m *ChatPaneModel) SetHistory(history []ollama.Message) {
	m.history = history
	m.refresh()
}

// History returns the conversation so far.
func (m ChatPaneModel) History() []ollama.Message {
	return m.history
}

// Pending reports whether a reply is outstanding.
func (m ChatPaneModel) Pending() bool {
	return m.pending
}

func (m *ChatPaneModel) refresh() {
	width := m.viewport.Width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	if len(m.history) == 0 {
		b.WriteString(StyleStatusPending.Render("Say hello to get started."))
	}
	for _, turn := range m.history {
		label := StyleAssistant.Render("Assistant:")
		if turn.Role == ollama.RoleUser {
			label = StyleUser.Render("You:")
		}
		b.WriteString(wrap.Render(label + " " + turn.Content))
		b.WriteString("\n\n")
	}
	if m.pending {
		b.WriteString(StyleStatusRunning.Render("Assistant is thinking..."))
	}
	if m.notice != "" {
		b.WriteString(StyleStatusFailed.Render(m.notice))
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// View renders the chat pane.
func (m ChatPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		StyleTitle.Render("Assistant"),
		m.viewport.View(),
		m.input.View(),
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

// SetSize updates the pane dimensions.
func (m *ChatPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-4, 10)
	m.viewport.Height = max(h-5, 3) // title, input and borders
	m.input.Width = max(w-8, 10)
	m.refresh()
}

// SetFocused focuses or blurs the input.
func (m *ChatPaneModel) SetFocused(focused bool) tea.Cmd {
	m.focused = focused
	if focused {
		return m.input.Focus()
	}
	m.input.Blur()
	return nil
}
