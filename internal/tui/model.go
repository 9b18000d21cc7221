package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/personaliz/internal/config"
	"github.com/aristath/personaliz/internal/events"
	"github.com/aristath/personaliz/internal/gateway"
	"github.com/aristath/personaliz/internal/ollama"
	"github.com/aristath/personaliz/internal/persistence"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneChat PaneID = iota
	PaneAgents
	PaneActivity

	paneCount = 3
)

// transcriptTurns is how much of the saved conversation is restored at start.
const transcriptTurns = 50

// statusInterval is how often availability is re-checked.
const statusInterval = 30 * time.Second

// Gateway is the part of the command gateway the TUI drives.
type Gateway interface {
	ScriptRunner
	SendMessage(ctx context.Context, message string, history []ollama.Message) (string, error)
	Status(ctx context.Context) gateway.ServiceStatus
	InstallInstructions() string
}

// Deps are the collaborators the TUI needs.
type Deps struct {
	Context           context.Context
	Gateway           Gateway
	Store             persistence.Store
	Bus               *events.EventBus
	Config            *config.GatewayConfig
	GlobalConfigPath  string
	ProjectConfigPath string
}

type (
	transcriptMsg struct {
		turns []persistence.Turn
		err   error
	}
	statusTickMsg struct{}
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	chatPane     ChatPaneModel
	agentPane    AgentPaneModel
	activityPane ActivityPaneModel
	settingsPane SettingsPaneModel
	agentForm    AgentFormModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	ctx          context.Context
	gw           Gateway
	store        persistence.Store
	width        int
	height       int
	quitting     bool
	showSettings bool
	now          func() time.Time
}

// New creates a new TUI model.
// It subscribes to all events from the event bus using SubscribeAll.
func New(d Deps) Model {
	ctx := d.Context
	if ctx == nil {
		ctx = context.Background()
	}
	m := Model{
		chatPane:     NewChatPaneModel(),
		agentPane:    NewAgentPaneModel(),
		activityPane: NewActivityPaneModel(),
		settingsPane: NewSettingsPaneModel(d.Config, d.GlobalConfigPath, d.ProjectConfigPath),
		agentForm:    NewAgentFormModel(),
		focusedPane:  PaneChat,
		ctx:          ctx,
		gw:           d.Gateway,
		store:        d.Store,
		now:          time.Now,
	}
	if d.Bus != nil {
		m.eventSub = d.Bus.SubscribeAll(256)
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.eventSub),
		m.loadAgents(),
		m.loadTranscript(),
		m.refreshStatus(),
		statusTick(),
		textinput.Blink,
	)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

func (m Model) loadAgents() tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		agents, err := store.ListAgents(ctx)
		return agentsLoadedMsg{agents: agents, err: err}
	}
}

func (m Model) loadTranscript() tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		turns, err := store.Transcript(ctx, transcriptTurns)
		return transcriptMsg{turns: turns, err: err}
	}
}

func (m Model) loadLogs(id string) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		logs, err := store.ListLogs(ctx, id)
		return agentLogsMsg{id: id, logs: logs, err: err}
	}
}

func (m Model) refreshStatus() tea.Cmd {
	ctx, gw, now := m.ctx, m.gw, m.now
	return func() tea.Msg {
		return statusMsg{status: gw.Status(ctx), at: now()}
	}
}

func (m Model) sendMessage(msg chatSubmitMsg) tea.Cmd {
	ctx, gw, store := m.ctx, m.gw, m.store
	return func() tea.Msg {
		reply, err := gw.SendMessage(ctx, msg.text, msg.history)
		if err != nil {
			return chatReplyMsg{err: err}
		}
		// The transcript is best effort; the reply matters more.
		_ = store.AppendTurn(ctx, ollama.RoleUser, msg.text)
		_ = store.AppendTurn(ctx, ollama.RoleAssistant, reply)
		return chatReplyMsg{reply: reply}
	}
}

func (m Model) runAgent(req runAgentRequestMsg) tea.Cmd {
	ctx, gw, store, now := m.ctx, m.gw, m.store, m.now
	return func() tea.Msg {
		updated, err := RunAgent(ctx, gw, store, req.agent, req.sandbox, now)
		return agentRunMsg{id: req.agent.ID, agent: updated, err: err}
	}
}

func (m Model) deleteAgent(id string) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		if err := store.DeleteAgent(ctx, id); err != nil {
			return noteMsg{text: "Could not delete agent: " + err.Error()}
		}
		agents, err := store.ListAgents(ctx)
		return agentsLoadedMsg{agents: agents, err: err}
	}
}

func (m Model) saveAgent(agent *persistence.Agent) tea.Cmd {
	ctx, store := m.ctx, m.store
	return func() tea.Msg {
		if err := store.SaveAgent(ctx, agent); err != nil {
			return noteMsg{text: "Could not save agent: " + err.Error()}
		}
		agents, err := store.ListAgents(ctx)
		return agentsLoadedMsg{agents: agents, err: err}
	}
}

func statusTick() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg { return statusTickMsg{} })
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Overlays are modal.
		if m.agentForm.IsVisible() {
			var cmd tea.Cmd
			m.agentForm, cmd = m.agentForm.Update(msg)
			return m, cmd
		}
		if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
				if m.settingsPane.Saved() {
					cmds = append(cmds, emit(noteMsg{text: "Settings saved. Restart to apply."}))
				}
			}
			return m, tea.Batch(cmds...)
		}

		// Keys that always apply.
		switch msg.String() {
		case KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case KeyRefresh:
			return m, m.refreshStatus()
		case KeyTab:
			return m, m.focus((m.focusedPane + 1) % paneCount)
		case KeyShiftTab:
			return m, m.focus((m.focusedPane + paneCount - 1) % paneCount)
		}

		// The chat input owns printable keys while focused.
		if m.focusedPane == PaneChat {
			var cmd tea.Cmd
			m.chatPane, cmd = m.chatPane.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit:
			m.quitting = true
			return m, tea.Quit
		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())
		case KeyPane1:
			cmds = append(cmds, m.focus(PaneChat))
		case KeyPane2:
			cmds = append(cmds, m.focus(PaneAgents))
		case KeyPane3:
			cmds = append(cmds, m.focus(PaneActivity))
		default:
			var cmd tea.Cmd
			switch m.focusedPane {
			case PaneAgents:
				m.agentPane, cmd = m.agentPane.Update(msg)
			case PaneActivity:
				m.activityPane, cmd = m.activityPane.Update(msg)
			}
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)
		m.agentForm.SetSize(msg.Width, msg.Height)

	case transcriptMsg:
		if msg.err != nil {
			cmds = append(cmds, emit(noteMsg{text: "Could not restore conversation: " + msg.err.Error()}))
			break
		}
		history := make([]ollama.Message, 0, len(msg.turns))
		for _, t := range msg.turns {
			history = append(history, ollama.Message{Role: t.Role, Content: t.Content})
		}
		m.chatPane.SetHistory(history)

	case chatSubmitMsg:
		cmds = append(cmds, m.sendMessage(msg))

	case chatReplyMsg:
		var cmd tea.Cmd
		m.chatPane, cmd = m.chatPane.Update(msg)
		cmds = append(cmds, cmd)

	case newAgentRequestMsg:
		m.agentForm.SetVisible(true)
		cmds = append(cmds, m.agentForm.Init())

	case agentCreatedMsg:
		cmds = append(cmds, m.saveAgent(msg.agent))

	case installRequestMsg:
		gw := m.gw
		cmds = append(cmds, func() tea.Msg { return noteMsg{text: gw.InstallInstructions()} })

	case deleteAgentRequestMsg:
		cmds = append(cmds, m.deleteAgent(msg.id))

	case logsRequestMsg:
		cmds = append(cmds, m.loadLogs(msg.id))

	case runAgentRequestMsg:
		cmds = append(cmds, m.runAgent(msg))

	case agentsLoadedMsg, agentLogsMsg, agentRunMsg:
		var cmd tea.Cmd
		m.agentPane, cmd = m.agentPane.Update(msg)
		cmds = append(cmds, cmd)

	case statusTickMsg:
		cmds = append(cmds, m.refreshStatus(), statusTick())

	case statusMsg, noteMsg:
		var cmd tea.Cmd
		m.activityPane, cmd = m.activityPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.OperationStartedEvent, events.OperationCompletedEvent, events.OperationFailedEvent, events.ServiceStatusEvent:
		var cmd tea.Cmd
		m.activityPane, cmd = m.activityPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	default:
		// Forward anything else (e.g. cursor blinks) to visible overlays.
		if m.agentForm.IsVisible() {
			var cmd tea.Cmd
			m.agentForm, cmd = m.agentForm.Update(msg)
			cmds = append(cmds, cmd)
		} else if m.showSettings {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			cmds = append(cmds, cmd)
		} else {
			var cmd tea.Cmd
			m.chatPane, cmd = m.chatPane.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

// focus moves focus to pane and returns the chat input's focus command.
func (m *Model) focus(pane PaneID) tea.Cmd {
	m.focusedPane = pane
	return m.updateFocusStates()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.agentForm.IsVisible() {
		return m.agentForm.View()
	}
	if m.showSettings {
		return m.settingsPane.View()
	}

	header := StyleHeader.Render("Personaliz") + "  " + m.activityPane.StatusLine()

	rightPane := lipgloss.JoinVertical(lipgloss.Left, m.agentPane.View(), m.activityPane.View())
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, m.chatPane.View(), rightPane)

	return lipgloss.JoinVertical(lipgloss.Left, header, mainContent, HelpView(m.focusedPane))
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 45) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 2 // header and help bar
	agentsHeight := (availableHeight * 60) / 100
	activityHeight := availableHeight - agentsHeight

	m.chatPane.SetSize(leftWidth, availableHeight)
	m.agentPane.SetSize(rightWidth, agentsHeight)
	m.activityPane.SetSize(rightWidth, activityHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() tea.Cmd {
	m.agentPane.SetFocused(m.focusedPane == PaneAgents)
	m.activityPane.SetFocused(m.focusedPane == PaneActivity)
	return m.chatPane.SetFocused(m.focusedPane == PaneChat)
}

// FocusedPane returns the focused pane.
func (m Model) FocusedPane() PaneID {
	return m.focusedPane
}
