package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/internal/server"
	"github.com/ShayCichocki/opsmesh/internal/state"
)

var (
	inspectOutput   string
	resourcesType   string
	historyLimit    int
	historyStats    bool
	historyPurgeAge time.Duration
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List resources recorded in the knowledge base",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, kb, err := openKnowledge()
		if err != nil {
			return err
		}

		resources := kb.Resources()
		if resourcesType != "" {
			resources = kb.GetResourcesByType(resourcesType)
		}

		out := cmd.OutOrStdout()
		if format != outputText {
			return writeValue(out, format, map[string]any{"resources": resources})
		}
		if len(resources) == 0 && resourcesType != "" {
			fmt.Fprintf(out, "No %s resources recorded.\n", resourcesType)
			if types := kb.ResourceTypes(); len(types) > 0 {
				fmt.Fprintf(out, "Known types: %s\n", strings.Join(types, ", "))
			}
			return nil
		}
		if len(resources) == 0 {
			fmt.Fprintln(out, "No resources recorded.")
			return nil
		}
		for _, id := range sortedKeys(resources) {
			r := resources[id]
			fmt.Fprintf(out, "%s %s  %s\n", color.CyanString(r.Type), id,
				r.CreatedAt.Local().Format(time.DateTime))
			for _, k := range sortedKeys(r.Metadata) {
				fmt.Fprintf(out, "    %s: %v\n", k, r.Metadata[k])
			}
		}
		return nil
	},
}

var deploymentsCmd = &cobra.Command{
	Use:   "deployments",
	Short: "List deployments recorded in the knowledge base",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, kb, err := openKnowledge()
		if err != nil {
			return err
		}

		deployments := kb.Deployments()
		if deployments == nil {
			deployments = []knowledge.Deployment{}
		}

		out := cmd.OutOrStdout()
		if format != outputText {
			return writeValue(out, format, map[string]any{"deployments": deployments})
		}
		if len(deployments) == 0 {
			fmt.Fprintln(out, "No deployments recorded.")
			return nil
		}
		for i, d := range deployments {
			fmt.Fprintf(out, "%s\n", color.New(color.Bold).Sprintf("Deployment %d", i+1))
			for _, k := range sortedKeys(d) {
				fmt.Fprintf(out, "    %s: %v\n", k, d[k])
			}
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived plans",
	Long: `List finished plans from the SQLite archive, newest first.

With --stats, print per-agent task outcomes instead. With --purge, delete
plans archived longer ago than the given age before listing.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the enabled agents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseOutputFormat(inspectOutput)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		var infos []server.AgentInfo
		for _, ag := range a.orch.Agents() {
			infos = append(infos, server.AgentInfo{Type: ag.Type(), Description: ag.Description()})
		}

		out := cmd.OutOrStdout()
		if format != outputText {
			return writeValue(out, format, map[string]any{"agents": infos})
		}
		for _, info := range infos {
			fmt.Fprintf(out, "%-15s %s\n", color.CyanString(string(info.Type)), info.Description)
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{resourcesCmd, deploymentsCmd, historyCmd, agentsCmd} {
		c.Flags().StringVarP(&inspectOutput, "output", "o", "text", "Output format: text, json or yaml")
	}
	resourcesCmd.Flags().StringVar(&resourcesType, "type", "", "Only list resources of this type (e.g. ec2_instance)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of plans to list (0 for all)")
	historyCmd.Flags().BoolVar(&historyStats, "stats", false, "Show per-agent task statistics")
	historyCmd.Flags().DurationVar(&historyPurgeAge, "purge", 0, "Delete plans archived longer ago than this age (e.g. 720h)")
}

// openKnowledge parses --output and opens the configured knowledge base.
func openKnowledge() (outputFormat, *knowledge.KnowledgeBase, error) {
	format, err := parseOutputFormat(inspectOutput)
	if err != nil {
		return "", nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Knowledge.Path == "" {
		return format, knowledge.New(), nil
	}
	return format, knowledge.Open(cfg.Knowledge.Path), nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := parseOutputFormat(inspectOutput)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := cmd.OutOrStdout()
	if cfg.Archive.Path == "" {
		fmt.Fprintln(out, "Plan archive is disabled (archive.path is empty).")
		return nil
	}
	if _, err := os.Stat(cfg.Archive.Path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(out, "No archived plans. Run 'opsmesh run <request>' to create one.")
		return nil
	}

	db, err := state.OpenArchive(cfg.Archive.Path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer db.Close()

	if historyPurgeAge > 0 {
		n, err := db.PurgeOldPlans(historyPurgeAge)
		if err != nil {
			return err
		}
		printStatus(cmd.ErrOrStderr(), "✓", fmt.Sprintf("Purged %d archived plans", n), color.FgGreen)
	}

	if historyStats {
		stats, err := db.AgentStats()
		if err != nil {
			return err
		}
		if format != outputText {
			return writeValue(out, format, map[string]any{"agents": stats})
		}
		return printAgentStats(out, stats)
	}

	records, err := db.ListPlans(historyLimit)
	if err != nil {
		return err
	}
	if records == nil {
		records = []state.PlanRecord{}
	}
	if format != outputText {
		return writeValue(out, format, map[string]any{"plans": records})
	}
	return printHistory(out, records)
}

func printHistory(w io.Writer, records []state.PlanRecord) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No archived plans.")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %-10s  %s  %d/%d tasks completed",
			r.ID, planStatusColor(r.Status).Sprint(r.Status), r.CreatedAt.Local().Format(time.DateTime),
			r.CompletedCount, r.TaskCount)
		if r.FailedCount > 0 {
			fmt.Fprintf(w, ", %s", color.RedString("%d failed", r.FailedCount))
		}
		fmt.Fprintf(w, "\n    %s\n", r.Name)
	}
	return nil
}

func printAgentStats(w io.Writer, stats []state.AgentStats) error {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No archived tasks.")
		return nil
	}
	fmt.Fprintf(w, "%-15s %10s %8s %8s %12s\n", "AGENT", "COMPLETED", "FAILED", "PENDING", "AVG (ms)")
	for _, s := range stats {
		fmt.Fprintf(w, "%-15s %10d %8d %8d %12.1f\n", s.AgentType, s.Completed, s.Failed, s.Pending, s.AvgDurationMS)
	}
	return nil
}
