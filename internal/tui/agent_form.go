package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/personaliz/internal/persistence"
)

// agentCreatedMsg carries a completed new-agent form.
type agentCreatedMsg struct {
	agent *persistence.Agent
}

// AgentFormModel is the new-agent overlay.
type AgentFormModel struct {
	form    *huh.Form
	fields  *agentFields // heap-held so form bindings survive model copies
	width   int
	height  int
	visible bool
}

type agentFields struct {
	name        string
	description string
	role        string
	goal        string
	schedule    string
	tools       string
	actions     string
}

// NewAgentFormModel creates a hidden form.
func NewAgentFormModel() AgentFormModel {
	m := AgentFormModel{}
	m.reset()
	return m
}

func (m *AgentFormModel) reset() {
	f := &agentFields{schedule: string(persistence.ScheduleDaily)}
	m.fields = f

	options := make([]huh.Option[string], 0, len(persistence.Schedules))
	for _, s := range persistence.Schedules {
		options = append(options, huh.NewOption(string(s), string(s)))
	}

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("name").
				Title("Name").
				Value(&f.name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					return nil
				}),
			huh.NewInput().
				Key("description").
				Title("Description").
				Value(&f.description),
		).Title("Agent"),

		huh.NewGroup(
			huh.NewInput().
				Key("role").
				Title("Role").
				Placeholder("LinkedIn content writer").
				Value(&f.role),
			huh.NewText().
				Key("goal").
				Title("Goal").
				Value(&f.goal),
			huh.NewSelect[string]().
				Key("schedule").
				Title("Schedule").
				Options(options...).
				Value(&f.schedule),
		).Title("Behaviour"),

		huh.NewGroup(
			huh.NewInput().
				Key("tools").
				Title("Tools").
				Description("Comma separated").
				Value(&f.tools),
			huh.NewInput().
				Key("actions").
				Title("Actions").
				Description("Comma separated").
				Value(&f.actions),
		).Title("Capabilities"),
	)
	if m.width > 0 {
		m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
	}
}

// splitList splits a comma separated field, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Agent builds the agent described by the current field values.
func (m AgentFormModel) Agent() *persistence.Agent {
	f := m.fields
	return &persistence.Agent{
		Name:        strings.TrimSpace(f.name),
		Description: strings.TrimSpace(f.description),
		Role:        strings.TrimSpace(f.role),
		Goal:        strings.TrimSpace(f.goal),
		Schedule:    persistence.Schedule(f.schedule),
		Tools:       splitList(f.tools),
		Actions:     splitList(f.actions),
		Status:      persistence.AgentDraft,
	}
}

// Init initializes the form.
func (m AgentFormModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages while the form is visible.
func (m AgentFormModel) Update(msg tea.Msg) (AgentFormModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.visible = false
		return m, tea.Batch(cmd, emit(agentCreatedMsg{agent: m.Agent()}))
	case huh.StateAborted:
		m.visible = false
	}
	return m, cmd
}

// View renders the form overlay.
func (m AgentFormModel) View() string {
	if !m.visible {
		return ""
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("+ New Agent")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(m.form.View()))
}

// SetSize updates the dimensions of the form.
func (m *AgentFormModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the form. Showing starts from empty fields.
func (m *AgentFormModel) SetVisible(v bool) {
	m.visible = v
	if v {
		m.reset()
	}
}

// IsVisible returns whether the form is showing.
func (m AgentFormModel) IsVisible() bool {
	return m.visible
}
