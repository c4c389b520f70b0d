package server

import (
	"time"

	"github.com/ShayCichocki/opsmesh/internal/agent"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// ProcessRequest is the body of POST /process.
type ProcessRequest struct {
	Request  *string `json:"request"`
	Async    bool    `json:"async"`
	PlanName string  `json:"plan_name"`
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	Request *string `json:"request"`
}

// AgentInfo describes one registered agent.
type AgentInfo struct {
	Type        models.AgentType `json:"type" yaml:"type"`
	Description string           `json:"description" yaml:"description"`
}

// TaskView is the wire form of a task. Duration is in seconds and null until
// the task is terminal.
type TaskView struct {
	ID          string            `json:"id" yaml:"id"`
	AgentType   models.AgentType  `json:"agent_type" yaml:"agent_type"`
	Description string            `json:"description" yaml:"description"`
	Parameters  map[string]any    `json:"parameters" yaml:"parameters"`
	DependsOn   []string          `json:"depends_on" yaml:"depends_on"`
	Status      models.TaskStatus `json:"status" yaml:"status"`
	Result      map[string]any    `json:"result" yaml:"result"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time        `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time        `json:"completed_at" yaml:"completed_at"`
	Duration    *float64          `json:"duration" yaml:"duration"`
}

// PlanView is the wire form of a plan. Duration is in seconds and null until
// the plan is terminal.
type PlanView struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Tasks       []TaskView        `json:"tasks" yaml:"tasks"`
	Status      models.PlanStatus `json:"status" yaml:"status"`
	CreatedAt   time.Time         `json:"created_at" yaml:"created_at"`
	StartedAt   *time.Time        `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time        `json:"completed_at" yaml:"completed_at"`
	Duration    *float64          `json:"duration" yaml:"duration"`
}

// NewPlanView converts a plan snapshot to its wire form.
func NewPlanView(plan *models.ExecutionPlan) PlanView {
	tasks := make([]TaskView, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		deps := t.DependsOn
		if deps == nil {
			deps = []string{}
		}
		tasks = append(tasks, TaskView{
			ID:          t.ID,
			AgentType:   t.AgentType,
			Description: t.Description,
			Parameters:  t.Parameters,
			DependsOn:   deps,
			Status:      t.Status,
			Result:      t.Result,
			CreatedAt:   t.CreatedAt,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
			Duration:    seconds(t.Duration()),
		})
	}
	return PlanView{
		ID:          plan.ID,
		Name:        plan.Name,
		Description: plan.Description,
		Tasks:       tasks,
		Status:      plan.Status,
		CreatedAt:   plan.CreatedAt,
		StartedAt:   plan.StartedAt,
		CompletedAt: plan.CompletedAt,
		Duration:    seconds(plan.Duration()),
	}
}

func seconds(d time.Duration, ok bool) *float64 {
	if !ok {
		return nil
	}
	s := d.Seconds()
	return &s
}

func agentInfos(agents []agent.Agent) []AgentInfo {
	out := make([]AgentInfo, 0, len(agents))
	for _, a := range agents {
		out = append(out, AgentInfo{Type: a.Type(), Description: a.Description()})
	}
	return out
}
