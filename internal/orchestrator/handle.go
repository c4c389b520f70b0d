package orchestrator

import (
	"context"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// PlanHandle tracks one plan while a driver executes it.
type PlanHandle struct {
	plan *models.ExecutionPlan
	done chan struct{}
}

func newPlanHandle(plan *models.ExecutionPlan) *PlanHandle {
	return &PlanHandle{plan: plan, done: make(chan struct{})}
}

// PlanID returns the id of the plan.
func (h *PlanHandle) PlanID() string {
	return h.plan.ID
}

// Done is closed once the plan is terminal and archived.
func (h *PlanHandle) Done() <-chan struct{} {
	return h.done
}

// Snapshot returns the current state of the plan.
func (h *PlanHandle) Snapshot() *models.ExecutionPlan {
	return h.plan.Snapshot()
}

// Wait blocks until the plan finishes and returns its final state.
func (h *PlanHandle) Wait(ctx context.Context) (*models.ExecutionPlan, error) {
	select {
	case <-h.done:
		return h.plan.Snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
