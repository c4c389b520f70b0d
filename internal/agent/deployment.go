package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// DeploymentAgent records application deployments.
type DeploymentAgent struct {
	base
	newID func() string
}

// NewDeploymentAgent creates a deployment agent.
func NewDeploymentAgent(kb *knowledge.KnowledgeBase, opts ...Option) *DeploymentAgent {
	return &DeploymentAgent{
		base: newBase(models.AgentTypeDeployment,
			"Deploys applications and manages release pipelines",
			DeploymentKeywords, kb, opts),
		newID: func() string {
			return "dep-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
		},
	}
}

// Execute registers a successful deployment record and remembers it as the
// agent's last deployment.
func (a *DeploymentAgent) Execute(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.logStart(task)

	id := a.newID()
	env := stringParam(task.Parameters, "environment", "dev")
	a.kb.RegisterDeployment(map[string]any{
		"id":          id,
		"application": stringParam(task.Parameters, "application", "unknown"),
		"version":     stringParam(task.Parameters, "version", "1.0.0"),
		"environment": env,
		"status":      "success",
		"task_id":     task.ID,
	})
	a.kb.UpdateAgentMemory(a.agentType, "last_deployment", id)
	a.logger.Info("deployment recorded", zap.String("task_id", task.ID), zap.String("deployment_id", id))

	return map[string]any{
		"deployment_id": id,
		"status":        "success",
		"url":           fmt.Sprintf("https://%s.example.com", env),
	}, nil
}
