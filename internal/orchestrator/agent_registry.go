package orchestrator

import (
	"sync"

	"github.com/ShayCichocki/opsmesh/internal/agent"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// AgentRegistry maps agent types to the agent that executes them.
// Registration order is kept because it is the order AnalyzeRequest
// reports matches in.
type AgentRegistry struct {
	// agents maps agent types to agents.
	agents map[models.AgentType]agent.Agent
	// order lists registered types in registration order.
	order []models.AgentType
	// mu protects all fields.
	mu sync.RWMutex
}

// NewAgentRegistry creates a registry holding the given agents.
func NewAgentRegistry(agents ...agent.Agent) *AgentRegistry {
	r := &AgentRegistry{
		agents: make(map[models.AgentType]agent.Agent, len(agents)),
	}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// Register adds an agent to the registry. An agent registered for a type
// that already has one replaces it and keeps the original position.
func (r *AgentRegistry) Register(a agent.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := a.Type()
	if _, ok := r.agents[t]; !ok {
		r.order = append(r.order, t)
	}
	r.agents[t] = a
}

// Get returns the agent registered for the type.
func (r *AgentRegistry) Get(t models.AgentType) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[t]
	return a, ok
}

// All returns the registered agents in registration order.
func (r *AgentRegistry) All() []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]agent.Agent, 0, len(r.order))
	for _, t := range r.order {
		agents = append(agents, r.agents[t])
	}
	return agents
}
