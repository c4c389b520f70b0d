package models

import "testing"

func TestAgentType_Valid(t *testing.T) {
	tests := []struct {
		name      string
		agentType AgentType
		want      bool
	}{
		{"infrastructure is valid", AgentTypeInfrastructure, true},
		{"deployment is valid", AgentTypeDeployment, true},
		{"monitoring is valid", AgentTypeMonitoring, true},
		{"security is valid", AgentTypeSecurity, true},
		{"cost is valid", AgentTypeCost, true},
		{"empty string is invalid", AgentType(""), false},
		{"unknown type is invalid", AgentType("network"), false},
		{"upper case is invalid", AgentType("Infrastructure"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.agentType.Valid(); got != tt.want {
				t.Errorf("AgentType(%q).Valid() = %v, want %v", tt.agentType, got, tt.want)
			}
		})
	}
}

func TestAgentType_Title(t *testing.T) {
	tests := []struct {
		agentType AgentType
		want      string
	}{
		{AgentTypeInfrastructure, "Infrastructure"},
		{AgentTypeDeployment, "Deployment"},
		{AgentTypeCost, "Cost"},
		{AgentType(""), ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.agentType), func(t *testing.T) {
			if got := tt.agentType.Title(); got != tt.want {
				t.Errorf("AgentType(%q).Title() = %q, want %q", tt.agentType, got, tt.want)
			}
		})
	}
}

func TestParseAgentType(t *testing.T) {
	tests := []struct {
		in     string
		want   AgentType
		wantOK bool
	}{
		{"monitoring", AgentTypeMonitoring, true},
		{"  Security ", AgentTypeSecurity, true},
		{"COST", AgentTypeCost, true},
		{"network", AgentType("network"), false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAgentType(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseAgentType(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAllAgentTypes_AreDistinctAndValid(t *testing.T) {
	seen := make(map[AgentType]bool)
	for _, at := range AllAgentTypes() {
		if !at.Valid() {
			t.Errorf("AllAgentTypes contains invalid type %q", at)
		}
		if seen[at] {
			t.Errorf("duplicate agent type %q", at)
		}
		seen[at] = true
	}
	if len(seen) != 5 {
		t.Errorf("expected 5 agent types, got %d", len(seen))
	}
	if AllAgentTypes()[0] != DefaultAgentType {
		t.Errorf("expected default agent type to lead canonical order, got %q", AllAgentTypes()[0])
	}
}
