package models

import (
	"fmt"
	"sync"
	"time"
)

// PlanStatus represents the aggregate state of an execution plan.
type PlanStatus string

const (
	// PlanStatusPending indicates the plan has not started.
	PlanStatusPending PlanStatus = "pending"
	// PlanStatusRunning indicates a driver is executing the plan.
	PlanStatusRunning PlanStatus = "running"
	// PlanStatusCompleted indicates every task reached a terminal state.
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusFailed indicates the plan stalled or could not run.
	PlanStatusFailed PlanStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusPending, PlanStatusRunning, PlanStatusCompleted, PlanStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for completed and failed.
func (s PlanStatus) Terminal() bool {
	return s == PlanStatusCompleted || s == PlanStatusFailed
}

// ExecutionPlan is a DAG of agent tasks built from one request.
//
// Once a plan is shared with a driver, its state must only be changed through
// the methods below, and readers should work from Snapshot. Exported fields
// are for construction and for snapshots.
type ExecutionPlan struct {
	mu sync.RWMutex

	// ID is the unique identifier for this plan.
	ID string `json:"id"`
	// Name is a human-readable label.
	Name string `json:"name"`
	// Description is the originating request text.
	Description string `json:"description"`
	// Tasks are the nodes of the plan.
	Tasks []*AgentTask `json:"tasks"`
	// Status mirrors the aggregate task status.
	Status PlanStatus `json:"status"`
	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when a driver picked the plan up.
	StartedAt *time.Time `json:"started_at"`
	// CompletedAt is when the plan reached a terminal state.
	CompletedAt *time.Time `json:"completed_at"`
}

// NewExecutionPlan creates a pending plan over the given tasks.
func NewExecutionPlan(id, name, description string, tasks []*AgentTask) *ExecutionPlan {
	return &ExecutionPlan{
		ID:          id,
		Name:        name,
		Description: description,
		Tasks:       tasks,
		Status:      PlanStatusPending,
		CreatedAt:   now(),
	}
}

// GetStatus returns the current plan status.
func (p *ExecutionPlan) GetStatus() PlanStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// RunnableTasks returns copies of the tasks that are pending and whose every
// dependency names a completed task. Unknown dependency IDs are never satisfied.
func (p *ExecutionPlan) RunnableTasks() []*AgentTask {
	p.mu.RLock()
	defer p.mu.RUnlock()

	completed := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if t.Status == TaskStatusCompleted {
			completed[t.ID] = true
		}
	}

	var runnable []*AgentTask
	for _, t := range p.Tasks {
		if t.Status != TaskStatusPending {
			continue
		}
		ready := true
		for _, dep := range t.DependsOn {
			if !completed[dep] {
				ready = false
				break
			}
		}
		if ready {
			runnable = append(runnable, t.Clone())
		}
	}
	return runnable
}

// IsComplete returns true when every task is completed or failed.
func (p *ExecutionPlan) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.Tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// Task returns a copy of the task with the given ID.
func (p *ExecutionPlan) Task(id string) (*AgentTask, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t := p.findLocked(id)
	if t == nil {
		return nil, false
	}
	return t.Clone(), true
}

// Counts returns the number of tasks in each status.
func (p *ExecutionPlan) Counts() map[TaskStatus]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	counts := make(map[TaskStatus]int, 4)
	for _, t := range p.Tasks {
		counts[t.Status]++
	}
	return counts
}

// Start moves a pending plan to running.
// Returns false if the plan was not pending.
func (p *ExecutionPlan) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status != PlanStatusPending && p.Status != "" {
		return false
	}
	ts := now()
	p.Status = PlanStatusRunning
	p.StartedAt = &ts
	return true
}

// StartTask marks the task running and returns a copy of it.
func (p *ExecutionPlan) StartTask(id string) (*AgentTask, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.findLocked(id)
	if t == nil {
		return nil, fmt.Errorf("task %s not found in plan %s", id, p.ID)
	}
	if !t.MarkStarted() {
		return nil, fmt.Errorf("task %s is %s, not pending", id, t.Status)
	}
	return t.Clone(), nil
}

// CompleteTask records a successful result for the task.
// Returns false if the task is unknown or already terminal.
func (p *ExecutionPlan) CompleteTask(id string, result map[string]any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.findLocked(id)
	if t == nil {
		return false
	}
	return t.MarkCompleted(result)
}

// FailTask records a failure for the task.
// Returns false if the task is unknown or already terminal.
func (p *ExecutionPlan) FailTask(id string, msg string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.findLocked(id)
	if t == nil {
		return false
	}
	return t.MarkFailed(msg)
}

// MarkCompleted moves the plan to completed.
func (p *ExecutionPlan) MarkCompleted() {
	p.finish(PlanStatusCompleted)
}

// MarkFailed moves the plan to failed.
func (p *ExecutionPlan) MarkFailed() {
	p.finish(PlanStatusFailed)
}

func (p *ExecutionPlan) finish(status PlanStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Status.Terminal() {
		return
	}
	ts := now()
	p.Status = status
	p.CompletedAt = &ts
}

// Duration returns CompletedAt - StartedAt.
// The second return value is false when either timestamp is missing.
func (p *ExecutionPlan) Duration() (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.StartedAt == nil || p.CompletedAt == nil {
		return 0, false
	}
	return p.CompletedAt.Sub(*p.StartedAt), true
}

// Snapshot returns a deep copy of the plan that is safe to read while the
// original keeps executing.
func (p *ExecutionPlan) Snapshot() *ExecutionPlan {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tasks := make([]*AgentTask, len(p.Tasks))
	for i, t := range p.Tasks {
		tasks[i] = t.Clone()
	}
	snap := &ExecutionPlan{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Tasks:       tasks,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
	}
	if p.StartedAt != nil {
		ts := *p.StartedAt
		snap.StartedAt = &ts
	}
	if p.CompletedAt != nil {
		ts := *p.CompletedAt
		snap.CompletedAt = &ts
	}
	return snap
}

func (p *ExecutionPlan) findLocked(id string) *AgentTask {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
