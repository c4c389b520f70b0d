package models

import "strings"

// AgentType identifies the specialization of an agent.
type AgentType string

const (
	// AgentTypeInfrastructure provisions cloud resources.
	AgentTypeInfrastructure AgentType = "infrastructure"
	// AgentTypeDeployment ships application releases.
	AgentTypeDeployment AgentType = "deployment"
	// AgentTypeMonitoring configures dashboards and alerts.
	AgentTypeMonitoring AgentType = "monitoring"
	// AgentTypeSecurity audits resources for risky configuration.
	AgentTypeSecurity AgentType = "security"
	// AgentTypeCost estimates spend for known resources.
	AgentTypeCost AgentType = "cost"
)

// DefaultAgentType is used when no agent claims a request.
const DefaultAgentType = AgentTypeInfrastructure

// AllAgentTypes returns every known agent type in canonical order.
func AllAgentTypes() []AgentType {
	return []AgentType{
		AgentTypeInfrastructure,
		AgentTypeDeployment,
		AgentTypeMonitoring,
		AgentTypeSecurity,
		AgentTypeCost,
	}
}

// Valid returns true if the agent type is a known value.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeInfrastructure, AgentTypeDeployment, AgentTypeMonitoring,
		AgentTypeSecurity, AgentTypeCost:
		return true
	default:
		return false
	}
}

// Title returns the agent type with its first letter upper-cased.
func (t AgentType) Title() string {
	if t == "" {
		return ""
	}
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseAgentType converts a string to an AgentType, case-insensitively.
// The second return value is false for unknown types.
func ParseAgentType(s string) (AgentType, bool) {
	t := AgentType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}
