package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/opsmesh/internal/graph"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// DefaultRefreshRate is how often the watch view polls when no rate is given.
const DefaultRefreshRate = 100 * time.Millisecond

// StatusFunc looks up the current state of a plan.
type StatusFunc func(id string) (*models.ExecutionPlan, bool)

// planMsg carries the result of one status poll.
type planMsg struct {
	plan  *models.ExecutionPlan
	found bool
}

// WatchModel follows a single plan until it is terminal.
type WatchModel struct {
	planID   string
	status   StatusFunc
	refresh  time.Duration
	spinner  spinner.Model
	plan     *models.ExecutionPlan
	found    bool
	quitting bool
	width    int

	// Styles
	titleStyle   lipgloss.Style
	labelStyle   lipgloss.Style
	pendingStyle lipgloss.Style
	runningStyle lipgloss.Style
	doneStyle    lipgloss.Style
	failedStyle  lipgloss.Style
	hintStyle    lipgloss.Style
}

// NewWatchModel creates a watch view for the plan.
func NewWatchModel(planID string, status StatusFunc, refresh time.Duration) *WatchModel {
	if refresh <= 0 {
		refresh = DefaultRefreshRate
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))

	return &WatchModel{
		planID:  planID,
		status:  status,
		refresh: refresh,
		spinner: s,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),

		pendingStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")), // Gray

		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")), // Green

		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")), // Dark green

		failedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")), // Red

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
	}
}

// Plan returns the last observed state of the plan, or nil if it was never
// found.
func (m *WatchModel) Plan() *models.ExecutionPlan {
	return m.plan
}

// Init implements tea.Model.
func (m *WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch)
}

func (m *WatchModel) fetch() tea.Msg {
	plan, ok := m.status(m.planID)
	return planMsg{plan: plan, found: ok}
}

func (m *WatchModel) poll() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return m.fetch() })
}

// Update implements tea.Model.
func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case planMsg:
		m.found = msg.found
		if msg.found {
			m.plan = msg.plan
			if msg.plan.Status.Terminal() {
				return m, tea.Quit
			}
		}
		return m, m.poll()
	}

	return m, nil
}

// View implements tea.Model.
func (m *WatchModel) View() string {
	var b strings.Builder

	if m.plan == nil {
		fmt.Fprintf(&b, "%s waiting for plan %s...\n", m.spinner.View(), m.planID)
		b.WriteString(m.hintStyle.Render("q to quit") + "\n")
		return b.String()
	}

	plan := m.plan
	b.WriteString(m.titleStyle.Render(fmt.Sprintf("%s (%s)", plan.Name, plan.ID)) + "\n")
	fmt.Fprintf(&b, "%s %s\n\n", m.labelStyle.Render("status:"), m.planStatus(plan.Status))

	tasks, blocked := graph.Ordered(plan)
	for _, t := range tasks {
		line := fmt.Sprintf("%s %-28s %-15s %s", m.taskIcon(t.Status), t.ID, t.AgentType, m.taskStatus(t.Status))
		if d, ok := t.Duration(); ok {
			line += m.labelStyle.Render(fmt.Sprintf("  %s", d.Round(time.Millisecond)))
		}
		b.WriteString(line + "\n")
		if msg := t.Error(); msg != "" {
			b.WriteString("    " + m.failedStyle.Render(msg) + "\n")
		}
		if reason, ok := blocked[t.ID]; ok {
			b.WriteString("    " + m.hintStyle.Render("blocked: "+reason) + "\n")
		}
	}

	if !plan.Status.Terminal() && !m.quitting {
		b.WriteString("\n" + m.hintStyle.Render("q to stop watching (the plan keeps running)") + "\n")
	}
	return b.String()
}

func (m *WatchModel) planStatus(s models.PlanStatus) string {
	switch s {
	case models.PlanStatusCompleted:
		return m.doneStyle.Render(string(s))
	case models.PlanStatusFailed:
		return m.failedStyle.Render(string(s))
	case models.PlanStatusRunning:
		return m.runningStyle.Render(string(s))
	default:
		return m.pendingStyle.Render(string(s))
	}
}

func (m *WatchModel) taskStatus(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return m.doneStyle.Render(string(s))
	case models.TaskStatusFailed:
		return m.failedStyle.Render(string(s))
	case models.TaskStatusRunning:
		return m.runningStyle.Render(string(s))
	default:
		return m.pendingStyle.Render(string(s))
	}
}

func (m *WatchModel) taskIcon(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return m.doneStyle.Render("✓")
	case models.TaskStatusFailed:
		return m.failedStyle.Render("✗")
	case models.TaskStatusRunning:
		return m.spinner.View()
	default:
		return m.pendingStyle.Render("·")
	}
}

// Watch runs the watch view on the terminal until the plan is terminal, the
// user quits, or ctx is done. It returns the last observed plan state.
func Watch(ctx context.Context, planID string, status StatusFunc, refresh time.Duration) (*models.ExecutionPlan, error) {
	m := NewWatchModel(planID, status, refresh)
	if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil {
		return m.Plan(), fmt.Errorf("watch plan %s: %w", planID, err)
	}
	return m.Plan(), nil
}
