package agent

import (
	"context"
	"sort"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// SecurityAgent audits registered resources for risky configuration.
type SecurityAgent struct {
	base
}

// NewSecurityAgent creates a security agent.
func NewSecurityAgent(kb *knowledge.KnowledgeBase, opts ...Option) *SecurityAgent {
	return &SecurityAgent{
		base: newBase(models.AgentTypeSecurity,
			"Audits resources for access and network exposure",
			SecurityKeywords, kb, opts),
	}
}

// Execute flags buckets with a non-private ACL and instances launched without
// a security group.
func (a *SecurityAgent) Execute(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.logStart(task)

	resources := a.kb.Resources()
	ids := make([]string, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	findings := []map[string]any{}
	for _, id := range ids {
		res := resources[id]
		switch res.Type {
		case ResourceS3Bucket:
			if acl, _ := res.Metadata["acl"].(string); acl != "" && acl != DefaultBucketACL {
				findings = append(findings, map[string]any{
					"resource": id,
					"severity": "high",
					"issue":    "bucket ACL is " + acl,
				})
			}
		case ResourceEC2Instance:
			if sg, _ := res.Metadata["security_group"].(string); sg == "" {
				findings = append(findings, map[string]any{
					"resource": id,
					"severity": "medium",
					"issue":    "instance has no security group",
				})
			}
		}
	}

	status := "passed"
	if len(findings) > 0 {
		status = "findings"
	}
	a.kb.UpdateAgentMemory(a.agentType, "last_audit", map[string]any{
		"task_id":  task.ID,
		"findings": len(findings),
	})

	return map[string]any{
		"status":            status,
		"resources_scanned": len(ids),
		"findings":          findings,
	}, nil
}
