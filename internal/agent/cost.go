package agent

import (
	"context"
	"math"
	"sort"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

const hoursPerMonth = 730

// instanceHourly is on-demand USD per hour for common instance types.
var instanceHourly = map[string]float64{
	"t2.micro":  0.0116,
	"t2.small":  0.023,
	"t2.medium": 0.0464,
	"t3.micro":  0.0104,
	"t3.small":  0.0208,
	"t3.medium": 0.0416,
	"m5.large":  0.096,
}

const (
	fallbackHourly = 0.05
	bucketMonthly  = 2.30
)

// CostAgent estimates the monthly bill of registered resources.
type CostAgent struct {
	base
}

// NewCostAgent creates a cost agent.
func NewCostAgent(kb *knowledge.KnowledgeBase, opts ...Option) *CostAgent {
	return &CostAgent{
		base: newBase(models.AgentTypeCost,
			"Estimates monthly spend for provisioned resources",
			CostKeywords, kb, opts),
	}
}

// Execute prices every instance and bucket from a static table.
func (a *CostAgent) Execute(ctx context.Context, task *models.AgentTask) (map[string]any, error) {
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

	breakdown := []map[string]any{}
	var total float64
	for _, id := range ids {
		res := resources[id]
		var monthly float64
		switch res.Type {
		case ResourceEC2Instance:
			itype, _ := res.Metadata["instance_type"].(string)
			hourly, ok := instanceHourly[itype]
			if !ok {
				hourly = fallbackHourly
			}
			monthly = hourly * hoursPerMonth
		case ResourceS3Bucket:
			monthly = bucketMonthly
		default:
			continue
		}
		monthly = roundCents(monthly)
		total += monthly
		breakdown = append(breakdown, map[string]any{
			"resource":    id,
			"type":        res.Type,
			"monthly_usd": monthly,
		})
	}
	total = roundCents(total)

	a.kb.UpdateAgentMemory(a.agentType, "last_estimate", total)

	return map[string]any{
		"currency":             "USD",
		"monthly_estimate_usd": total,
		"breakdown":            breakdown,
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
