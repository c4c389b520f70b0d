package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates an agent is working on the task.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for completed and failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// now is swapped in tests that need deterministic timestamps.
var now = time.Now

// AgentTask represents a unit of work assigned to exactly one agent type.
type AgentTask struct {
	// ID is unique within the owning plan.
	ID string `json:"id"`
	// AgentType selects the agent that executes the task.
	AgentType AgentType `json:"agent_type"`
	// Description is the human-readable summary of the work.
	Description string `json:"description"`
	// Parameters carries agent-specific inputs.
	Parameters map[string]any `json:"parameters"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Result holds the agent output on success, or {"error": msg} on failure.
	Result map[string]any `json:"result"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the task was dispatched, if it has been.
	StartedAt *time.Time `json:"started_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at"`
}

// NewAgentTask creates a pending task.
func NewAgentTask(id string, agentType AgentType, description string, params map[string]any, dependsOn ...string) *AgentTask {
	if params == nil {
		params = make(map[string]any)
	}
	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	return &AgentTask{
		ID:          id,
		AgentType:   agentType,
		Description: description,
		Parameters:  params,
		DependsOn:   deps,
		Status:      TaskStatusPending,
		CreatedAt:   now(),
	}
}

// MarkStarted moves a pending task to running.
// Returns false if the task was not pending.
func (t *AgentTask) MarkStarted() bool {
	if t.Status != TaskStatusPending {
		return false
	}
	ts := now()
	t.Status = TaskStatusRunning
	t.StartedAt = &ts
	return true
}

// MarkCompleted records a successful result.
// Returns false and leaves the task untouched if it is already terminal.
func (t *AgentTask) MarkCompleted(result map[string]any) bool {
	if t.Status.Terminal() {
		return false
	}
	if result == nil {
		result = make(map[string]any)
	}
	ts := now()
	t.Status = TaskStatusCompleted
	t.Result = result
	t.CompletedAt = &ts
	return true
}

// MarkFailed records an error description.
// Returns false and leaves the task untouched if it is already terminal.
func (t *AgentTask) MarkFailed(msg string) bool {
	if t.Status.Terminal() {
		return false
	}
	ts := now()
	t.Status = TaskStatusFailed
	t.Result = map[string]any{"error": msg}
	t.CompletedAt = &ts
	return true
}

// Error returns the recorded failure message, or "" if the task did not fail.
func (t *AgentTask) Error() string {
	if t.Status != TaskStatusFailed || t.Result == nil {
		return ""
	}
	msg, _ := t.Result["error"].(string)
	return msg
}

// Duration returns CompletedAt - StartedAt.
// The second return value is false when either timestamp is missing.
func (t *AgentTask) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(*t.StartedAt), true
}

// Clone returns a deep copy of the task. Nested maps and slices inside
// parameter and result values are shared.
func (t *AgentTask) Clone() *AgentTask {
	if t == nil {
		return nil
	}
	c := *t
	c.Parameters = cloneMap(t.Parameters)
	c.Result = cloneMap(t.Result)
	if t.DependsOn != nil {
		c.DependsOn = make([]string, len(t.DependsOn))
		copy(c.DependsOn, t.DependsOn)
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
