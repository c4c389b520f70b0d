// Package agent provides the capability agents that execute plan tasks.
//
// Each agent claims work through a keyword predicate over the request text
// and executes claimed tasks against the shared knowledge base.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// ErrUnknownAgentType is returned when asked to build an agent for a type
// that has no implementation.
var ErrUnknownAgentType = errors.New("unknown agent type")

// Agent is a capability provider. Implementations must be safe for
// concurrent use: independent plans may call Execute at the same time.
type Agent interface {
	// Type returns the agent type this agent serves.
	Type() models.AgentType
	// Description is a one-line summary shown by the agents listing.
	Description() string
	// CanHandle reports whether the request text falls in this agent's domain.
	CanHandle(description string) bool
	// Execute runs the task and returns its result. The task is a copy owned
	// by the caller; agents must not retain it.
	Execute(ctx context.Context, task *models.AgentTask) (map[string]any, error)
}

// Keyword vocabularies per agent type.
var (
	InfrastructureKeywords = []string{
		"ec2", "s3", "vpc", "subnet", "security group", "load balancer",
		"create instance", "launch instance", "provision", "infrastructure",
	}
	DeploymentKeywords = []string{
		"deploy", "release", "version", "build", "pipeline", "ci/cd",
		"continuous integration", "continuous deployment", "git", "docker",
	}
	MonitoringKeywords = []string{
		"monitor", "alert", "metric", "log", "dashboard", "cloudwatch",
		"performance", "health", "status", "notification",
	}
	SecurityKeywords = []string{
		"iam", "firewall", "vulnerability", "encrypt", "compliance",
		"audit", "secret", "certificate",
	}
	CostKeywords = []string{
		"cost", "budget", "billing", "spend", "pricing", "savings",
	}
)

// KeywordMatcher reports whether text contains any of a fixed set of
// keywords, ignoring case.
type KeywordMatcher struct {
	keywords []string
}

// NewKeywordMatcher creates a matcher over the given keywords.
func NewKeywordMatcher(keywords ...string) KeywordMatcher {
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return KeywordMatcher{keywords: lowered}
}

// Match returns true if any keyword is a substring of text.
func (m KeywordMatcher) Match(text string) bool {
	lower := strings.ToLower(text)
	for _, k := range m.keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Option configures an agent.
type Option func(*base)

// WithLogger sets the agent's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// base carries the parts every agent shares.
type base struct {
	agentType   models.AgentType
	description string
	matcher     KeywordMatcher
	kb          *knowledge.KnowledgeBase
	logger      *zap.Logger
}

func newBase(agentType models.AgentType, description string, keywords []string, kb *knowledge.KnowledgeBase, opts []Option) base {
	b := base{
		agentType:   agentType,
		description: description,
		matcher:     NewKeywordMatcher(keywords...),
		kb:          kb,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With(zap.String("agent_type", string(agentType)))
	return b
}

func (b *base) Type() models.AgentType { return b.agentType }

func (b *base) Description() string { return b.description }

func (b *base) CanHandle(description string) bool { return b.matcher.Match(description) }

func (b *base) logStart(task *models.AgentTask) {
	b.logger.Info("executing task",
		zap.String("task_id", task.ID),
		zap.String("description", task.Description),
	)
}

// DefaultEnabled lists the agents registered when configuration names none.
func DefaultEnabled() []models.AgentType {
	return []models.AgentType{
		models.AgentTypeInfrastructure,
		models.AgentTypeDeployment,
		models.AgentTypeMonitoring,
	}
}

// NewDefaultSet builds the enabled agents in canonical order. An empty
// enabled list means DefaultEnabled. Duplicates are ignored.
func NewDefaultSet(kb *knowledge.KnowledgeBase, prov Provisioner, enabled []models.AgentType, opts ...Option) ([]Agent, error) {
	if len(enabled) == 0 {
		enabled = DefaultEnabled()
	}
	want := make(map[models.AgentType]bool, len(enabled))
	for _, t := range enabled {
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgentType, t)
		}
		want[t] = true
	}
	if prov == nil {
		prov = NewSimulatedProvisioner()
	}

	var agents []Agent
	for _, t := range models.AllAgentTypes() {
		if !want[t] {
			continue
		}
		switch t {
		case models.AgentTypeInfrastructure:
			agents = append(agents, NewInfrastructureAgent(kb, prov, opts...))
		case models.AgentTypeDeployment:
			agents = append(agents, NewDeploymentAgent(kb, opts...))
		case models.AgentTypeMonitoring:
			agents = append(agents, NewMonitoringAgent(kb, opts...))
		case models.AgentTypeSecurity:
			agents = append(agents, NewSecurityAgent(kb, opts...))
		case models.AgentTypeCost:
			agents = append(agents, NewCostAgent(kb, opts...))
		}
	}
	return agents, nil
}

func stringParam(params map[string]any, key, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}
