package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

func testPlan() *models.ExecutionPlan {
	return models.NewExecutionPlan("plan-1", "Web rollout", "", []*models.AgentTask{
		models.NewAgentTask("plan-1-task-0", models.AgentTypeInfrastructure, "provision", nil),
		models.NewAgentTask("plan-1-task-1", models.AgentTypeDeployment, "deploy", nil, "plan-1-task-0"),
	})
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestWatchModel_WaitsForUnknownPlan(t *testing.T) {
	m := NewWatchModel("plan-x", func(string) (*models.ExecutionPlan, bool) { return nil, false }, 0)

	if m.refresh != DefaultRefreshRate {
		t.Errorf("refresh = %v, want %v", m.refresh, DefaultRefreshRate)
	}

	msg := m.fetch()
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("expected a poll command while the plan is unknown")
	}
	if m.Plan() != nil {
		t.Error("Plan() should be nil before the plan is found")
	}
	if !strings.Contains(m.View(), "waiting for plan plan-x") {
		t.Errorf("View() = %q", m.View())
	}
}

func TestWatchModel_RendersRunningPlan(t *testing.T) {
	plan := testPlan()
	plan.Start()
	if _, err := plan.StartTask("plan-1-task-0"); err != nil {
		t.Fatal(err)
	}

	m := NewWatchModel(plan.ID, func(string) (*models.ExecutionPlan, bool) { return plan.Snapshot(), true }, 0)
	_, cmd := m.Update(m.fetch())
	if isQuit(cmd) {
		t.Fatal("watch should keep polling a running plan")
	}

	view := m.View()
	for _, want := range []string{"Web rollout", "plan-1-task-0", "plan-1-task-1", "running", "pending", "q to stop watching"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestWatchModel_QuitsWhenTerminal(t *testing.T) {
	plan := testPlan()
	plan.Start()
	if _, err := plan.StartTask("plan-1-task-0"); err != nil {
		t.Fatal(err)
	}
	plan.FailTask("plan-1-task-0", "quota exceeded")
	plan.MarkFailed()

	m := NewWatchModel(plan.ID, func(string) (*models.ExecutionPlan, bool) { return plan.Snapshot(), true }, 0)
	_, cmd := m.Update(m.fetch())
	if !isQuit(cmd) {
		t.Fatal("expected tea.Quit for a terminal plan")
	}
	if got := m.Plan(); got == nil || got.Status != models.PlanStatusFailed {
		t.Errorf("Plan() = %+v, want failed plan", got)
	}

	view := m.View()
	if !strings.Contains(view, "quota exceeded") {
		t.Errorf("View() missing task error:\n%s", view)
	}
	if !strings.Contains(view, "blocked: dependency plan-1-task-0 failed") {
		t.Errorf("View() missing blocked reason:\n%s", view)
	}
	if strings.Contains(view, "q to stop watching") {
		t.Error("terminal view should not show the quit hint")
	}
}

func TestWatchModel_QuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
	} {
		m := NewWatchModel("plan-1", func(string) (*models.ExecutionPlan, bool) { return nil, false }, 0)
		_, cmd := m.Update(key)
		if !isQuit(cmd) {
			t.Errorf("key %q did not quit", key.String())
		}
		if !m.quitting {
			t.Errorf("key %q did not set quitting", key.String())
		}
	}
}

func TestWatchModel_IgnoresOtherKeys(t *testing.T) {
	m := NewWatchModel("plan-1", func(string) (*models.ExecutionPlan, bool) { return nil, false }, 0)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	if cmd != nil {
		t.Error("unexpected command for unbound key")
	}
}
