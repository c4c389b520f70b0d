package orchestrator

import (
	"time"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventPlanStarted indicates a driver picked up a plan.
	EventPlanStarted EventType = "plan_started"
	// EventTaskStarted indicates a task has been dispatched to its agent.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed.
	EventTaskFailed EventType = "task_failed"
	// EventPlanCompleted indicates every task of a plan reached a terminal state.
	EventPlanCompleted EventType = "plan_completed"
	// EventPlanFailed indicates a plan stalled or was rejected.
	EventPlanFailed EventType = "plan_failed"
)

// Event represents an event emitted by the orchestrator.
// These events are used by the CLI to report progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// PlanID is the ID of the plan the event belongs to.
	PlanID string
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// AgentType is the agent type of the related task, if applicable.
	AgentType models.AgentType
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Duration is the task or plan run time for terminal events.
	Duration time.Duration
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
