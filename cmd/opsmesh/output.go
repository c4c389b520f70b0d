package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/opsmesh/internal/graph"
	"github.com/ShayCichocki/opsmesh/internal/orchestrator"
	"github.com/ShayCichocki/opsmesh/internal/server"
	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// outputFormat selects how plans are printed.
type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case "", outputText:
		return outputText, nil
	case outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// writeValue encodes v as indented JSON or YAML.
func writeValue(w io.Writer, format outputFormat, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
}

// printPlan writes the plan in the given format.
func printPlan(w io.Writer, plan *models.ExecutionPlan, format outputFormat) error {
	if format != outputText {
		return writeValue(w, format, server.NewPlanView(plan))
	}

	fmt.Fprintf(w, "\n%s %s (%s)\n", color.New(color.Bold).Sprint("Plan:"), plan.Name, plan.ID)
	fmt.Fprintf(w, "Status: %s", planStatusColor(plan.Status).Sprint(plan.Status))
	if d, ok := plan.Duration(); ok {
		fmt.Fprintf(w, " in %s", d.Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	counts := plan.Counts()
	fmt.Fprintf(w, "Tasks: %d total, %d completed, %d failed, %d pending\n\n",
		len(plan.Tasks), counts[models.TaskStatusCompleted], counts[models.TaskStatusFailed],
		counts[models.TaskStatusPending]+counts[models.TaskStatusRunning])

	tasks, blocked := graph.Ordered(plan)
	for _, t := range tasks {
		fmt.Fprintf(w, "  %s %-24s %-15s %s\n",
			taskSymbol(t.Status), t.ID, t.AgentType, taskStatusColor(t.Status).Sprint(t.Status))
		if len(t.DependsOn) > 0 {
			fmt.Fprintf(w, "      depends on: %s\n", strings.Join(t.DependsOn, ", "))
		}
		if reason, ok := blocked[t.ID]; ok {
			fmt.Fprintf(w, "      %s %s\n", color.YellowString("blocked:"), reason)
		}
		if msg := t.Error(); msg != "" {
			fmt.Fprintf(w, "      %s %s\n", color.RedString("error:"), msg)
			continue
		}
		for _, k := range sortedKeys(t.Result) {
			fmt.Fprintf(w, "      %s: %v\n", k, t.Result[k])
		}
	}
	return nil
}

// printEvent writes one progress line.
func printEvent(w io.Writer, ev orchestrator.Event) {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case orchestrator.EventPlanStarted:
		fmt.Fprintf(w, "%s %s plan %s started\n", ts, color.CyanString("▶"), ev.PlanID)
	case orchestrator.EventTaskStarted:
		fmt.Fprintf(w, "%s %s %s (%s)\n", ts, color.YellowString("…"), ev.TaskID, ev.AgentType)
	case orchestrator.EventTaskCompleted:
		fmt.Fprintf(w, "%s %s %s (%s) in %s\n", ts, color.GreenString("✓"), ev.TaskID, ev.AgentType,
			ev.Duration.Round(time.Millisecond))
	case orchestrator.EventTaskFailed:
		fmt.Fprintf(w, "%s %s %s (%s): %v\n", ts, color.RedString("✗"), ev.TaskID, ev.AgentType, ev.Error)
	case orchestrator.EventPlanCompleted:
		fmt.Fprintf(w, "%s %s plan %s completed in %s\n", ts, color.GreenString("■"), ev.PlanID,
			ev.Duration.Round(time.Millisecond))
	case orchestrator.EventPlanFailed:
		fmt.Fprintf(w, "%s %s plan %s failed", ts, color.RedString("■"), ev.PlanID)
		if ev.Error != nil {
			fmt.Fprintf(w, ": %v", ev.Error)
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintf(w, "%s %s %s\n", ts, ev.Type, ev.Message)
	}
}

func planStatusColor(s models.PlanStatus) *color.Color {
	switch s {
	case models.PlanStatusCompleted:
		return color.New(color.FgGreen)
	case models.PlanStatusFailed:
		return color.New(color.FgRed)
	case models.PlanStatusRunning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func taskStatusColor(s models.TaskStatus) *color.Color {
	switch s {
	case models.TaskStatusCompleted:
		return color.New(color.FgGreen)
	case models.TaskStatusFailed:
		return color.New(color.FgRed)
	case models.TaskStatusRunning:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func taskSymbol(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusRunning:
		return color.YellowString("…")
	default:
		return "·"
	}
}

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
