// Package graph provides a dependency graph over the tasks of an execution plan.
//
// The scheduler does not need the graph to make progress (ExecutionPlan
// computes its own runnable set). The graph is used to validate plans, to
// order tasks for display, and to explain why pending tasks can never run.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates a task depends on an ID that is not in the graph.
var ErrUnknownDependency = errors.New("unknown dependency")

// DependencyGraph represents the "blocked by" relationships between tasks.
type DependencyGraph struct {
	mu sync.RWMutex
	// order preserves insertion order for deterministic output.
	order []string
	// nodes maps task ID to the task itself.
	nodes map[string]*models.AgentTask
	// edges maps task ID to IDs of known tasks it depends on.
	edges map[string][]string
	// missing maps task ID to dependency IDs that are not in the graph.
	missing map[string][]string
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:   make(map[string]*models.AgentTask),
		edges:   make(map[string][]string),
		missing: make(map[string][]string),
	}
}

// FromPlan builds a graph from a snapshot of the plan. Validation problems are
// returned alongside the graph, which is always usable.
func FromPlan(plan *models.ExecutionPlan) (*DependencyGraph, error) {
	g := New()
	err := g.Build(plan.Snapshot().Tasks)
	return g, err
}

// Build constructs the dependency graph from a slice of tasks.
//
// Unlike a strict DAG builder, Build keeps going when it finds problems: the
// whole graph is always populated, and the returned error reports unknown
// dependencies (ErrUnknownDependency) and cycles (ErrCycleDetected).
func (g *DependencyGraph) Build(tasks []*models.AgentTask) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; !exists {
			g.order = append(g.order, task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from DependsOn fields.
	var errs []error
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				g.missing[task.ID] = append(g.missing[task.ID], depID)
				errs = append(errs, fmt.Errorf("task %s depends on %s: %w", task.ID, depID, ErrUnknownDependency))
				continue
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.hasCycleLocked() {
		errs = append(errs, ErrCycleDetected)
	}

	return errors.Join(errs...)
}

// hasCycleLocked uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns task IDs so that dependencies come before the tasks
// that depend on them. Ties keep insertion order.
// On a cycle it returns the sortable prefix with ErrCycleDetected; Unsortable
// lists the rest.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	sorted, rest := g.kahnLocked()
	if len(rest) > 0 {
		return sorted, ErrCycleDetected
	}
	return sorted, nil
}

// Unsortable returns the IDs of tasks that sit on a cycle or downstream of
// one, in insertion order.
func (g *DependencyGraph) Unsortable() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, rest := g.kahnLocked()
	return rest
}

// kahnLocked runs Kahn's algorithm, returning the sorted prefix and the
// nodes that could not be placed.
func (g *DependencyGraph) kahnLocked() (sorted []string, rest []string) {
	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.edges[id])
		for _, dep := range g.edges[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	placed := make(map[string]bool, len(g.nodes))
	for {
		progressed := false
		for _, id := range g.order {
			if placed[id] || indegree[id] > 0 {
				continue
			}
			placed[id] = true
			sorted = append(sorted, id)
			for _, d := range dependents[id] {
				indegree[d]--
			}
			progressed = true
		}
		if !progressed {
			break
		}
	}

	for _, id := range g.order {
		if !placed[id] {
			rest = append(rest, id)
		}
	}
	return sorted, rest
}

// Blocked returns, for every non-terminal task that can never become
// runnable, a short reason. A task is blocked when a dependency failed, is
// unknown, is itself blocked, or when the task sits on a cycle.
func (g *DependencyGraph) Blocked() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unknown = iota
		visiting
		reachable
		dead
	)
	state := make(map[string]int, len(g.nodes))
	reasons := make(map[string]string)

	var resolve func(id string) bool
	resolve = func(id string) bool {
		switch state[id] {
		case reachable:
			return true
		case dead:
			return false
		case visiting:
			reasons[id] = "dependency cycle"
			state[id] = dead
			return false
		}

		task := g.nodes[id]
		switch task.Status {
		case models.TaskStatusCompleted:
			state[id] = reachable
			return true
		case models.TaskStatusFailed:
			state[id] = dead
			return false
		}

		state[id] = visiting
		if missing := g.missing[id]; len(missing) > 0 {
			reasons[id] = "unknown dependency " + strings.Join(missing, ", ")
			state[id] = dead
			return false
		}
		for _, dep := range g.edges[id] {
			if resolve(dep) {
				continue
			}
			if state[id] == dead {
				// Cycle detection already marked this node.
				return false
			}
			if g.nodes[dep].Status == models.TaskStatusFailed {
				reasons[id] = "dependency " + dep + " failed"
			} else {
				reasons[id] = "dependency " + dep + " is blocked"
			}
			state[id] = dead
			return false
		}
		state[id] = reachable
		return true
	}

	for _, id := range g.order {
		resolve(id)
	}
	return reasons
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.AgentTask {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Ordered returns a snapshot of the plan's tasks with dependencies first,
// followed by any tasks on or behind a cycle in plan order, together with
// the Blocked reasons. It is meant for display.
func Ordered(plan *models.ExecutionPlan) ([]*models.AgentTask, map[string]string) {
	g, _ := FromPlan(plan)
	ids, _ := g.TopologicalSort()
	ids = append(ids, g.Unsortable()...)

	tasks := make([]*models.AgentTask, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, g.GetTask(id))
	}
	return tasks, g.Blocked()
}
