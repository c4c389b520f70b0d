package models

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
)

func linearPlan(n int) *ExecutionPlan {
	tasks := make([]*AgentTask, n)
	for i := 0; i < n; i++ {
		var deps []string
		if i > 0 {
			deps = []string{fmt.Sprintf("task-%d", i-1)}
		}
		tasks[i] = NewAgentTask(fmt.Sprintf("task-%d", i), AgentTypeInfrastructure, "step", nil, deps...)
	}
	return NewExecutionPlan("plan-1", "linear", "request", tasks)
}

func runnableIDs(p *ExecutionPlan) []string {
	var ids []string
	for _, t := range p.RunnableTasks() {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestPlanStatus_Valid(t *testing.T) {
	tests := []struct {
		status PlanStatus
		want   bool
	}{
		{PlanStatusPending, true},
		{PlanStatusRunning, true},
		{PlanStatusCompleted, true},
		{PlanStatusFailed, true},
		{PlanStatus("paused"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("PlanStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestExecutionPlan_RunnableLinear(t *testing.T) {
	p := linearPlan(3)

	if got := runnableIDs(p); len(got) != 1 || got[0] != "task-0" {
		t.Fatalf("initial runnable = %v, want [task-0]", got)
	}

	if _, err := p.StartTask("task-0"); err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if got := runnableIDs(p); len(got) != 0 {
		t.Errorf("runnable while task-0 running = %v, want none", got)
	}

	p.CompleteTask("task-0", nil)
	if got := runnableIDs(p); len(got) != 1 || got[0] != "task-1" {
		t.Errorf("runnable after task-0 = %v, want [task-1]", got)
	}

	p.StartTask("task-1")
	p.FailTask("task-1", "boom")
	if got := runnableIDs(p); len(got) != 0 {
		t.Errorf("failed dependency must block dependents, got %v", got)
	}
	if p.IsComplete() {
		t.Error("plan with a blocked pending task is not complete")
	}
}

func TestExecutionPlan_UnknownDependencyNeverRunnable(t *testing.T) {
	p := NewExecutionPlan("p", "n", "d", []*AgentTask{
		NewAgentTask("a", AgentTypeCost, "a", nil, "ghost"),
	})
	if got := runnableIDs(p); len(got) != 0 {
		t.Errorf("runnable = %v, want none", got)
	}
}

func TestExecutionPlan_CycleNeverRunnable(t *testing.T) {
	p := NewExecutionPlan("p", "n", "d", []*AgentTask{
		NewAgentTask("a", AgentTypeCost, "a", nil, "b"),
		NewAgentTask("b", AgentTypeCost, "b", nil, "a"),
	})
	if got := runnableIDs(p); len(got) != 0 {
		t.Errorf("runnable = %v, want none", got)
	}
}

func TestExecutionPlan_StartTaskErrors(t *testing.T) {
	p := linearPlan(2)
	if _, err := p.StartTask("missing"); err == nil {
		t.Error("expected error for unknown task")
	}
	p.StartTask("task-0")
	if _, err := p.StartTask("task-0"); err == nil {
		t.Error("expected error when starting a running task")
	}
	if p.CompleteTask("missing", nil) {
		t.Error("CompleteTask on unknown task should return false")
	}
	if p.FailTask("missing", "x") {
		t.Error("FailTask on unknown task should return false")
	}
}

func TestExecutionPlan_StatusTransitions(t *testing.T) {
	fakeClock(t)
	p := linearPlan(1)

	if _, ok := p.Duration(); ok {
		t.Error("Duration should be undefined before start")
	}
	if !p.Start() {
		t.Fatal("Start on pending plan should succeed")
	}
	if p.Start() {
		t.Error("Start on running plan should be rejected")
	}
	if p.GetStatus() != PlanStatusRunning {
		t.Errorf("status = %q, want running", p.GetStatus())
	}

	p.MarkCompleted()
	p.MarkFailed()
	if p.GetStatus() != PlanStatusCompleted {
		t.Errorf("terminal plan status changed to %q", p.GetStatus())
	}
	if _, ok := p.Duration(); !ok {
		t.Error("Duration should be defined after completion")
	}
}

func TestExecutionPlan_SnapshotIsIndependent(t *testing.T) {
	p := linearPlan(2)
	p.Start()
	snap := p.Snapshot()

	p.StartTask("task-0")
	p.CompleteTask("task-0", map[string]any{"ok": true})

	if snap.Tasks[0].Status != TaskStatusPending {
		t.Errorf("snapshot task status changed to %q", snap.Tasks[0].Status)
	}
	if snap.Status != PlanStatusRunning {
		t.Errorf("snapshot status = %q, want running", snap.Status)
	}

	counts := p.Counts()
	if counts[TaskStatusCompleted] != 1 || counts[TaskStatusPending] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestExecutionPlan_ConcurrentSnapshots(t *testing.T) {
	p := linearPlan(20)
	p.Start()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = p.Snapshot()
					_ = p.IsComplete()
				}
			}
		}()
	}

	for {
		ready := p.RunnableTasks()
		if len(ready) == 0 {
			break
		}
		for _, task := range ready {
			p.StartTask(task.ID)
			p.CompleteTask(task.ID, nil)
		}
	}
	close(stop)
	wg.Wait()

	if !p.IsComplete() {
		t.Error("expected every task to complete")
	}
}

// TestExecutionPlan_RunnableProperty checks on random DAGs with random
// interleaved outcomes that a task is runnable exactly when it is pending and
// every dependency is completed.
func TestExecutionPlan_RunnableProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(12)
		tasks := make([]*AgentTask, n)
		for i := 0; i < n; i++ {
			var deps []string
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps = append(deps, fmt.Sprintf("t%d", j))
				}
			}
			tasks[i] = NewAgentTask(fmt.Sprintf("t%d", i), AgentTypeMonitoring, "x", nil, deps...)
		}
		p := NewExecutionPlan("p", "n", "d", tasks)

		for step := 0; step < 3*n; step++ {
			checkRunnableInvariant(t, p)

			ready := p.RunnableTasks()
			if len(ready) == 0 {
				break
			}
			pick := ready[rng.Intn(len(ready))]
			if _, err := p.StartTask(pick.ID); err != nil {
				t.Fatalf("trial %d: StartTask(%s): %v", trial, pick.ID, err)
			}
			if rng.Intn(4) == 0 {
				p.FailTask(pick.ID, "random failure")
			} else {
				p.CompleteTask(pick.ID, nil)
			}
			// Terminal tasks must never be selected again.
			for _, r := range p.RunnableTasks() {
				if r.ID == pick.ID {
					t.Fatalf("trial %d: terminal task %s re-selected as runnable", trial, pick.ID)
				}
			}
		}
	}
}

func checkRunnableInvariant(t *testing.T, p *ExecutionPlan) {
	t.Helper()
	snap := p.Snapshot()
	status := make(map[string]TaskStatus, len(snap.Tasks))
	for _, task := range snap.Tasks {
		status[task.ID] = task.Status
	}
	runnable := make(map[string]bool)
	for _, task := range p.RunnableTasks() {
		runnable[task.ID] = true
	}
	for _, task := range snap.Tasks {
		want := task.Status == TaskStatusPending
		for _, dep := range task.DependsOn {
			if status[dep] != TaskStatusCompleted {
				want = false
			}
		}
		if runnable[task.ID] != want {
			t.Fatalf("task %s runnable=%v, want %v (status=%s deps=%v)", task.ID, runnable[task.ID], want, task.Status, task.DependsOn)
		}
	}
}
