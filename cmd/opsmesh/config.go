package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/opsmesh/internal/config"
)

var (
	configInitProject bool
	configInitForce   bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration as YAML.

Settings are layered: built-in defaults, then ~/.config/opsmesh/config.yaml,
then the nearest .opsmesh.yaml, then OPSMESH_* environment variables.
Secrets are masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return writeValue(cmd.OutOrStdout(), outputYAML, cfg.Settings())
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "List the config files in effect",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if configPath != "" {
			fmt.Fprintln(out, configPath)
			return
		}
		files := config.ActiveFiles()
		if len(files) == 0 {
			fmt.Fprintf(out, "No config files found. Defaults apply.\nUser config: %s\n", config.GetUserConfigPath())
			return
		}
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.GetUserConfigPath()
		if configInitProject {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			path = filepath.Join(cwd, config.ProjectConfigName)
		}

		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("check %s: %w", path, err)
		}

		if err := config.Save(config.Default(), path); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		printStatus(cmd.OutOrStdout(), "✓", "Wrote "+path, color.FgGreen)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write "+config.ProjectConfigName+" in the current directory")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)
}
