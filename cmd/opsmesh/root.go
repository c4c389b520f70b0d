package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "opsmesh",
	Short: "Multi-agent infrastructure task orchestrator",
	Long: `Opsmesh turns natural-language infrastructure requests into execution
plans and runs them through a set of specialised agents.

A request such as "deploy a web app with EC2 instances and S3 storage" is
classified into agent types (infrastructure, deployment, monitoring,
security, cost), expanded into a plan of dependent tasks, and executed in
dependency order. Provisioned resources and deployments are recorded in a
knowledge base, and finished plans are archived for later inspection.

Configuration is read from ~/.config/opsmesh/config.yaml, then from the
nearest .opsmesh.yaml, then from OPSMESH_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user and project config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(deploymentsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
