package tui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/sitesmith/sitesmith/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget  string
	provider    string
	model       string
	apiKeyEnv   string
	baseURL     string
	installCmd  string
	buildCmd    string
	maxAttempts string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	active := cfg.Providers[cfg.Provider]

	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		visible:     false,
		saved:       false,

		// Initialize form field values from config
		saveTarget:  "global",
		provider:    cfg.Provider,
		model:       active.Model,
		apiKeyEnv:   active.APIKeyEnv,
		baseURL:     active.BaseURL,
		installCmd:  strings.Join(cfg.Build.Install, " "),
		buildCmd:    strings.Join(cfg.Build.Command, " "),
		maxAttempts: strconv.Itoa(cfg.Build.MaxAttempts),
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.sitesmith/config.json)", "global"),
					huh.NewOption("Project (.sitesmith/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("provider").
				Title("Provider").
				Value(&m.provider).
				Placeholder("openai"),

			huh.NewInput().
				Key("model").
				Title("Model").
				Value(&m.model).
				Placeholder("gpt-4o-mini"),

			huh.NewInput().
				Key("apiKeyEnv").
				Title("API Key Environment Variable").
				Value(&m.apiKeyEnv).
				Placeholder("OPENAI_API_KEY"),

			huh.NewInput().
				Key("baseURL").
				Title("Base URL (OpenAI-compatible hosts)").
				Value(&m.baseURL).
				Placeholder("https://api.openai.com/v1"),
		).Title("Provider Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("installCmd").
				Title("Install Command").
				Value(&m.installCmd).
				Placeholder("npm install --no-audit --no-fund"),

			huh.NewInput().
				Key("buildCmd").
				Title("Build Command").
				Value(&m.buildCmd).
				Placeholder("npm run build"),

			huh.NewInput().
				Key("maxAttempts").
				Title("Max Build Attempts").
				Value(&m.maxAttempts).
				Placeholder("3"),
		).Title("Build Settings"),
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

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	// Check if form is completed
	if m.form.State == huh.StateCompleted {
		// Copy form values back to config
		m.applyFormToConfig()

		// Determine save path
		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		// Save config
		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
		}

		// Hide form after successful save
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
func (m *SettingsPaneModel) applyFormToConfig() {
	provider := strings.TrimSpace(m.provider)
	if provider != "" {
		m.config.Provider = provider
	}

	if m.config.Providers == nil {
		m.config.Providers = make(map[string]config.ProviderConfig)
	}
	pc := m.config.Providers[m.config.Provider]
	if pc.Type == "" {
		pc.Type = m.config.Provider
	}
	pc.Model = strings.TrimSpace(m.model)
	pc.APIKeyEnv = strings.TrimSpace(m.apiKeyEnv)
	pc.BaseURL = strings.TrimSpace(m.baseURL)
	m.config.Providers[m.config.Provider] = pc

	if fields := strings.Fields(m.installCmd); len(fields) > 0 {
		m.config.Build.Install = fields
	}
	if fields := strings.Fields(m.buildCmd); len(fields) > 0 {
		m.config.Build.Command = fields
	}
	if n, err := strconv.Atoi(strings.TrimSpace(m.maxAttempts)); err == nil && n > 0 {
		m.config.Build.MaxAttempts = n
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	// Show saved message if just saved
	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved successfully!")
	} else if m.err != nil {
		// Show error if save failed
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		// Render form
		content = m.form.View()
	}

	// Wrap in styled border
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Reset form state when showing
	if v && m.form != nil {
		// Rebuild form to reset state
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
