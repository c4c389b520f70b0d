package state

import "github.com/ShayCichocki/opsmesh/pkg/models"

// PlanWriter archives finished plans. The orchestrator writes through it.
type PlanWriter interface {
	SavePlan(plan *models.ExecutionPlan) error
}

// PlanReader queries archived plans. The HTTP server reads through it.
type PlanReader interface {
	GetPlan(id string) (*PlanRecord, error)
	ListPlans(limit int) ([]PlanRecord, error)
	AgentStats() ([]AgentStats, error)
}

// Compile-time verification that DB implements both interfaces.
var (
	_ PlanWriter = (*DB)(nil)
	_ PlanReader = (*DB)(nil)
)
