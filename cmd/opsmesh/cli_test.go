package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestConfig writes a config that keeps every file under a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.Join([]string{
		"knowledge:",
		"  path: " + filepath.Join(dir, "knowledge.json"),
		"archive:",
		"  path: " + filepath.Join(dir, "archive.db"),
		"log:",
		"  level: error",
		"  file: " + filepath.Join(dir, "opsmesh.log"),
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath = ""
		runName, runOutput = "", "text"
		analyzeOutput, inspectOutput = "text", "text"
		resourcesType = ""
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "opsmesh version ") {
		t.Errorf("version output = %q", out)
	}
}

func TestCLI_Analyze(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfgPath, "analyze", "-o", "json", "deploy v2 and add a cloudwatch alert")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var got analysis
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(got.RequiredAgents) != 2 || got.RequiredAgents[0] != "deployment" || got.RequiredAgents[1] != "monitoring" {
		t.Errorf("required agents = %v", got.RequiredAgents)
	}
}

func TestCLI_RunThenHistory(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, "--config", cfgPath, "run", "-o", "json", "--name", "ec2-only", "launch an ec2 instance")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var plan map[string]any
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if plan["name"] != "ec2-only" || plan["status"] != "completed" {
		t.Fatalf("unexpected plan: %v", plan)
	}

	out, err = runCLI(t, "--config", cfgPath, "history", "-o", "json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var history struct {
		Plans []struct {
			ID string `json:"id"`
		} `json:"plans"`
	}
	if err := json.Unmarshal([]byte(out), &history); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(history.Plans) != 1 || history.Plans[0].ID != plan["id"] {
		t.Errorf("history = %+v, want plan %v", history.Plans, plan["id"])
	}

	out, err = runCLI(t, "--config", cfgPath, "resources", "-o", "json", "--type", "ec2_instance")
	if err != nil {
		t.Fatalf("resources: %v", err)
	}
	var resources struct {
		Resources map[string]any `json:"resources"`
	}
	if err := json.Unmarshal([]byte(out), &resources); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(resources.Resources) != 1 {
		t.Errorf("got %d ec2 resources, want 1", len(resources.Resources))
	}

	out, err = runCLI(t, "--config", cfgPath, "resources", "--type", "rds_cluster")
	if err != nil {
		t.Fatalf("resources: %v", err)
	}
	if !strings.Contains(out, "No rds_cluster resources recorded.") || !strings.Contains(out, "Known types: ") ||
		!strings.Contains(out, "ec2_instance") {
		t.Errorf("unexpected resources output:\n%s", out)
	}
}

func TestCLI_RunRejectsUnknownOutput(t *testing.T) {
	_, err := runCLI(t, "run", "-o", "xml", "launch ec2")
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("run -o xml error = %v", err)
	}
}
