package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sitesmith/sitesmith/internal/events"
)

// PipelinePaneModel displays run progress: the active phase, task
// counts, validation outcome, and the build-repair state.
type PipelinePaneModel struct {
	phase     string
	total     int
	completed int
	running   int
	failed    int

	validation string
	build      string
	outcome    string

	width   int
	height  int
	focused bool
}

// NewPipelinePaneModel creates a new pipeline pane model.
func NewPipelinePaneModel() PipelinePaneModel {
	return PipelinePaneModel{}
}

// Update handles messages for the pipeline pane.
func (m PipelinePaneModel) Update(msg tea.Msg) (PipelinePaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.PhaseChangedEvent:
		m.phase = msg.Phase

	case events.PlanReadyEvent:
		m.total = msg.TaskCount

	case events.TaskStartedEvent:
		m.running++

	case events.TaskCompletedEvent:
		m.running--
		m.completed++

	case events.TaskFailedEvent:
		m.running--
		m.failed++

	case events.ValidationDoneEvent:
		if msg.Valid {
			m.validation = StyleStatusComplete.Render("clean")
		} else {
			m.validation = StyleStatusFailed.Render(fmt.Sprintf("%d issue(s)", msg.Errors))
		}

	case events.RepairTransitionEvent:
		m.build = fmt.Sprintf("%s (attempt %d)", msg.To, msg.Attempt)
		if msg.Detail != "" {
			m.build += ": " + msg.Detail
		}

	case events.PipelineDoneEvent:
		if msg.Success {
			m.outcome = StyleStatusComplete.Render(fmt.Sprintf("✓ %d file(s) in %v", msg.Files, msg.Duration.Round(time.Millisecond)))
		} else {
			detail := msg.Feedback
			if i := strings.IndexByte(detail, '\n'); i >= 0 {
				detail = detail[:i]
			}
			m.outcome = StyleStatusFailed.Render("✗ " + detail)
		}
	}

	return m, nil
}

// View renders the pipeline pane.
func (m PipelinePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Pipeline")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.phase != "" {
		b.WriteString("Phase:     " + StylePhase.Render(m.phase) + "\n\n")
	}

	pending := m.total - m.completed - m.running - m.failed
	if pending < 0 {
		pending = 0
	}

	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", pending))))

	b.WriteString("\n")

	// Progress bar
	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		runningWidth := (m.running * barWidth) / m.total
		pendingWidth := barWidth - completedWidth - failedWidth - runningWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.completed, m.total))
	}

	if m.validation != "" {
		b.WriteString("\nValidation: " + m.validation + "\n")
	}
	if m.build != "" {
		b.WriteString("Build:      " + m.build + "\n")
	}
	if m.outcome != "" {
		b.WriteString("\n" + m.outcome + "\n")
	}

	content := b.String()

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
func (m *PipelinePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *PipelinePaneModel) SetFocused(focused bool) {
	m.focused = focused
}
