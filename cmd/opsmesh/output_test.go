package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/opsmesh/internal/orchestrator"
	"github.com/ShayCichocki/opsmesh/internal/state"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

func finishedPlan(t *testing.T) *models.ExecutionPlan {
	t.Helper()
	plan := models.NewExecutionPlan("plan-1", "Web rollout", "deploy web", []*models.AgentTask{
		models.NewAgentTask("plan-1-task-0", models.AgentTypeInfrastructure, "provision", nil),
		models.NewAgentTask("plan-1-task-1", models.AgentTypeDeployment, "deploy", nil, "plan-1-task-0"),
	})
	plan.Start()
	if _, err := plan.StartTask("plan-1-task-0"); err != nil {
		t.Fatal(err)
	}
	plan.CompleteTask("plan-1-task-0", map[string]any{"instance_id": "i-123"})
	if _, err := plan.StartTask("plan-1-task-1"); err != nil {
		t.Fatal(err)
	}
	plan.FailTask("plan-1-task-1", "rollout rejected")
	plan.MarkCompleted()
	return plan
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    outputFormat
		wantErr bool
	}{
		{"", outputText, false},
		{"text", outputText, false},
		{"JSON", outputJSON, false},
		{"yaml", outputYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOutputFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseOutputFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrintPlan_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := printPlan(&buf, finishedPlan(t), outputText); err != nil {
		t.Fatalf("printPlan: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Web rollout (plan-1)",
		"Status: completed",
		"2 total, 1 completed, 1 failed, 0 pending",
		"instance_id: i-123",
		"depends on: plan-1-task-0",
		"error: rollout rejected",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintPlan_TextOrderAndBlocked(t *testing.T) {
	plan := models.NewExecutionPlan("plan-2", "Rollout", "deploy", []*models.AgentTask{
		models.NewAgentTask("deploy", models.AgentTypeDeployment, "deploy", nil, "infra"),
		models.NewAgentTask("infra", models.AgentTypeInfrastructure, "provision", nil),
		models.NewAgentTask("watch", models.AgentTypeMonitoring, "monitor", nil, "deploy"),
	})
	plan.Start()
	if _, err := plan.StartTask("infra"); err != nil {
		t.Fatal(err)
	}
	plan.FailTask("infra", "quota exceeded")
	plan.MarkCompleted()

	var buf bytes.Buffer
	if err := printPlan(&buf, plan, outputText); err != nil {
		t.Fatalf("printPlan: %v", err)
	}
	out := buf.String()

	infra, deploy, watch := strings.Index(out, " infra "), strings.Index(out, " deploy "), strings.Index(out, " watch ")
	if infra < 0 || deploy < infra || watch < deploy {
		t.Errorf("tasks not in dependency order (infra=%d deploy=%d watch=%d):\n%s", infra, deploy, watch, out)
	}
	for _, want := range []string{"blocked: dependency infra failed", "blocked: dependency deploy is blocked"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintPlan_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printPlan(&buf, finishedPlan(t), outputJSON); err != nil {
		t.Fatalf("printPlan: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got["id"] != "plan-1" || got["status"] != "completed" {
		t.Errorf("unexpected plan: %v", got)
	}
	if _, ok := got["duration"].(float64); !ok {
		t.Errorf("duration = %v, want seconds", got["duration"])
	}
}

func TestPrintPlan_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := printPlan(&buf, finishedPlan(t), outputYAML); err != nil {
		t.Fatalf("printPlan: %v", err)
	}

	var got struct {
		ID    string `yaml:"id"`
		Tasks []struct {
			AgentType string `yaml:"agent_type"`
			Status    string `yaml:"status"`
		} `yaml:"tasks"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if got.ID != "plan-1" || len(got.Tasks) != 2 {
		t.Fatalf("unexpected plan: %+v", got)
	}
	if got.Tasks[1].AgentType != "deployment" || got.Tasks[1].Status != "failed" {
		t.Errorf("second task = %+v", got.Tasks[1])
	}
}

func TestPrintEvent(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.Local)
	tests := []struct {
		name string
		ev   orchestrator.Event
		want string
	}{
		{
			name: "plan started",
			ev:   orchestrator.Event{Type: orchestrator.EventPlanStarted, PlanID: "plan-1"},
			want: "plan plan-1 started",
		},
		{
			name: "task completed",
			ev: orchestrator.Event{Type: orchestrator.EventTaskCompleted, TaskID: "plan-1-task-0",
				AgentType: models.AgentTypeInfrastructure, Duration: 1500 * time.Millisecond},
			want: "plan-1-task-0 (infrastructure) in 1.5s",
		},
		{
			name: "task failed",
			ev: orchestrator.Event{Type: orchestrator.EventTaskFailed, TaskID: "plan-1-task-1",
				AgentType: models.AgentTypeSecurity, Error: errors.New("no agent available for type: security")},
			want: "plan-1-task-1 (security): no agent available for type: security",
		},
		{
			name: "plan failed",
			ev:   orchestrator.Event{Type: orchestrator.EventPlanFailed, PlanID: "plan-1", Message: "failed"},
			want: "plan plan-1 failed\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.ev.Timestamp = ts
			var buf bytes.Buffer
			printEvent(&buf, tt.ev)
			out := buf.String()
			if !strings.HasPrefix(out, "12:30:00 ") {
				t.Errorf("missing timestamp: %q", out)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("printEvent() = %q, want it to contain %q", out, tt.want)
			}
		})
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := printHistory(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No archived plans.") {
		t.Errorf("empty history = %q", buf.String())
	}

	buf.Reset()
	records := []state.PlanRecord{{
		ID: "plan-1", Name: "Web rollout", Status: models.PlanStatusCompleted,
		TaskCount: 2, CompletedCount: 1, FailedCount: 1, CreatedAt: time.Now(),
	}}
	if err := printHistory(&buf, records); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"plan-1", "1/2 tasks completed", "1 failed", "Web rollout"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
}

func TestPrintAgentStats(t *testing.T) {
	var buf bytes.Buffer
	stats := []state.AgentStats{{AgentType: models.AgentTypeDeployment, Completed: 3, Failed: 1, AvgDurationMS: 12.5}}
	if err := printAgentStats(&buf, stats); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "AGENT") || !strings.Contains(out, "deployment") || !strings.Contains(out, "12.5") {
		t.Errorf("unexpected stats output:\n%s", out)
	}
}
