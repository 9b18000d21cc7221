package tui

import (
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/personaliz/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.GatewayConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error
	fields      *settingsFields
}

// settingsFields holds the form bindings.
type settingsFields struct {
	saveTarget   string
	model        string
	baseURL      string
	scriptsDir   string
	interpreter  string
	shellEnabled bool
}

// NewSettingsPaneModel creates a new settings pane. The pane edits its own
// copy of cfg so running operations never see a half-applied change.
func NewSettingsPaneModel(cfg *config.GatewayConfig, globalPath, projectPath string) SettingsPaneModel {
	edit := *cfg
	m := SettingsPaneModel{
		config:      &edit,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFields()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFields() {
	m.fields = &settingsFields{
		saveTarget:   "global",
		model:        m.config.Service.Model,
		baseURL:      m.config.Service.BaseURL,
		scriptsDir:   m.config.Scripts.Dir,
		interpreter:  m.config.Scripts.Interpreter,
		shellEnabled: m.config.ShellEnabled(),
	}
}

func validateBaseURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a URL like http://localhost:11434")
	}
	return nil
}

func (m *SettingsPaneModel) buildForm() {
	f := m.fields
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.personaliz/config.json)", "global"),
					huh.NewOption("Project (.personaliz/config.json)", "project"),
				).
				Value(&f.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("model").
				Title("Model").
				Value(&f.model).
				Placeholder("llama3:8b"),

			huh.NewInput().
				Key("baseURL").
				Title("Ollama URL").
				Value(&f.baseURL).
				Placeholder("http://localhost:11434").
				Validate(validateBaseURL),
		).Title("Assistant"),

		huh.NewGroup(
			huh.NewInput().
				Key("scriptsDir").
				Title("Agent Engine Directory").
				Description("Relative to the install directory, or absolute").
				Value(&f.scriptsDir).
				Placeholder("public"),

			huh.NewInput().
				Key("interpreter").
				Title("Python Interpreter").
				Description("Leave empty to use python3 (python on Windows)").
				Value(&f.interpreter),

			huh.NewConfirm().
				Key("shellEnabled").
				Title("Allow shell commands from the UI?").
				Value(&f.shellEnabled),
		).Title("Automation"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == KeyEsc {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.globalPath
		if m.fields.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form values back to the config.
func (m *SettingsPaneModel) applyFormToConfig() {
	f := m.fields
	m.config.Service.Model = strings.TrimSpace(f.model)
	m.config.Service.BaseURL = strings.TrimSpace(f.baseURL)
	m.config.Scripts.Dir = strings.TrimSpace(f.scriptsDir)
	m.config.Scripts.Interpreter = strings.TrimSpace(f.interpreter)
	enabled := f.shellEnabled
	m.config.Shell.Enabled = &enabled
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
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
		Render("⚙ Settings (changes apply on restart)")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing resets the form to
// the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	if v {
		m.loadFields()
		m.buildForm()
		if m.width > 0 {
			m.form.WithWidth(m.width - 8).WithHeight(m.height - 8)
		}
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last submission was written to disk.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
