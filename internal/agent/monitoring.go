package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// baseAlerts are configured on every dashboard.
var baseAlerts = []string{"CPU > 80%", "Memory > 90%"}

// MonitoringAgent sets up dashboards and alerts for known instances.
type MonitoringAgent struct {
	base
}

// NewMonitoringAgent creates a monitoring agent.
func NewMonitoringAgent(kb *knowledge.KnowledgeBase, opts ...Option) *MonitoringAgent {
	return &MonitoringAgent{
		base: newBase(models.AgentTypeMonitoring,
			"Configures dashboards, metrics and alerting",
			MonitoringKeywords, kb, opts),
	}
}

// Execute creates a dashboard and one status-check alert per known instance.
func (a *MonitoringAgent) Execute(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.logStart(task)

	instances := a.kb.GetResourcesByType(ResourceEC2Instance)
	ids := make([]string, 0, len(instances))
	for id := range instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	alerts := append([]string(nil), baseAlerts...)
	for _, id := range ids {
		alerts = append(alerts, "StatusCheckFailed on "+id)
	}

	dashboards := a.kb.IncrementAgentCounter(a.agentType, "dashboards")

	return map[string]any{
		"message":             "Set up monitoring for: " + task.Description,
		"dashboard_url":       fmt.Sprintf("https://monitoring.example.com/dashboard/%d", dashboards),
		"alerts_configured":   alerts,
		"monitored_instances": ids,
	}, nil
}
