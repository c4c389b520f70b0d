package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

var analyzeOutput string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <request>",
	Short: "Show which agents a request needs",
	Long: `Classify a request without planning or executing it.

Agent types are listed in execution order. Only enabled agents are
considered. A request that matches none of them falls back to the
infrastructure agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := parseOutputFormat(analyzeOutput)
		if err != nil {
			return err
		}
		request := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a, err := newApp(cmd.Context(), cfg, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		types := a.orch.AnalyzeRequest(request)

		out := cmd.OutOrStdout()
		if format != outputText {
			return writeValue(out, format, analysis{Request: request, RequiredAgents: types})
		}
		fmt.Fprintf(out, "Request: %s\n", request)
		fmt.Fprintln(out, "Required agents:")
		for i, t := range types {
			fmt.Fprintf(out, "  %d. %s\n", i+1, t)
		}
		return nil
	},
}

// analysis mirrors the body of POST /analyze.
type analysis struct {
	Request        string             `json:"request" yaml:"request"`
	RequiredAgents []models.AgentType `json:"required_agents" yaml:"required_agents"`
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "text", "Output format: text, json or yaml")
}
