package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// planNameLimit is how much of the request a default plan name quotes.
const planNameLimit = 50

// AnalyzeRequest returns the agent types whose agents claim the request, in
// registration order. When no agent claims it, the result is exactly
// [infrastructure].
func (o *Orchestrator) AnalyzeRequest(request string) []models.AgentType {
	var types []models.AgentType
	for _, a := range o.registry.All() {
		if a.CanHandle(request) {
			types = append(types, a.Type())
		}
	}
	if len(types) == 0 {
		types = []models.AgentType{models.DefaultAgentType}
	}
	return types
}

// CreatePlan builds a pending plan for the request: one task per analyzed
// agent type, each depending on the one before it.
//
// Parameters come from the configured extractor. Extraction errors are
// logged and leave the task with empty parameters.
func (o *Orchestrator) CreatePlan(ctx context.Context, request, name string) (*models.ExecutionPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	types := o.AnalyzeRequest(request)
	planID := newPlanID()
	if name == "" {
		name = defaultPlanName(request)
	}

	tasks := make([]*models.AgentTask, 0, len(types))
	for i, t := range types {
		var deps []string
		if i > 0 {
			deps = []string{taskID(planID, i-1)}
		}
		desc := fmt.Sprintf("%s task for: %s", t.Title(), request)
		tasks = append(tasks, models.NewAgentTask(taskID(planID, i), t, desc, o.extractParams(ctx, t, request), deps...))
	}

	o.logger.Info("plan created",
		zap.String("plan_id", planID),
		zap.Int("tasks", len(tasks)),
		zap.Any("agent_types", types))
	return models.NewExecutionPlan(planID, name, request, tasks), nil
}

func (o *Orchestrator) extractParams(ctx context.Context, t models.AgentType, request string) map[string]any {
	params, err := o.opts.extractor.Extract(ctx, t, request)
	if err != nil {
		o.logger.Warn("parameter extraction failed",
			zap.String("agent_type", string(t)),
			zap.Error(err))
		return map[string]any{}
	}
	if params == nil {
		params = map[string]any{}
	}
	return params
}

func newPlanID() string {
	return "plan-" + uuid.New().String()[:8]
}

func taskID(planID string, i int) string {
	return fmt.Sprintf("%s-task-%d", planID, i)
}

// defaultPlanName quotes the first planNameLimit runes of the request.
func defaultPlanName(request string) string {
	r := []rune(request)
	if len(r) > planNameLimit {
		r = r[:planNameLimit]
	}
	return "Plan for: " + string(r) + "..."
}
