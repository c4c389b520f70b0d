// Package config handles configuration loading and management for opsmesh.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ShayCichocki/opsmesh/pkg/models"
)

// ProjectConfigName is the project-level override file searched upward from
// the working directory.
const ProjectConfigName = ".opsmesh.yaml"

// EnvPrefix prefixes every environment override, e.g. OPSMESH_LOG_LEVEL.
const EnvPrefix = "OPSMESH"

// Config holds all configuration for opsmesh.
type Config struct {
	Knowledge    KnowledgeConfig    `mapstructure:"knowledge"`
	Archive      ArchiveConfig      `mapstructure:"archive"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Agents       AgentsConfig       `mapstructure:"agents"`
	Extractor    ExtractorConfig    `mapstructure:"extractor"`
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	AWS          AWSConfig          `mapstructure:"aws"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	TUI          TUIConfig          `mapstructure:"tui"`
}

// KnowledgeConfig locates the knowledge base file. Empty keeps it in memory.
type KnowledgeConfig struct {
	Path string `mapstructure:"path"`
}

// ArchiveConfig locates the SQLite plan archive. Empty disables it.
type ArchiveConfig struct {
	Path string `mapstructure:"path"`
}

// OrchestratorConfig tunes the scheduling loop.
type OrchestratorConfig struct {
	// TaskTimeout bounds each agent call. Zero means no bound.
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// ParallelDispatch runs each iteration's ready tasks concurrently.
	ParallelDispatch bool `mapstructure:"parallel_dispatch"`
	// RejectInvalidPlans fails plans with cycles or unknown dependencies
	// before any task runs.
	RejectInvalidPlans bool `mapstructure:"reject_invalid_plans"`
}

// AgentsConfig selects which agents are registered.
type AgentsConfig struct {
	Enabled []string `mapstructure:"enabled"`
}

// ExtractorConfig selects the parameter extractor: empty, regex or claude.
type ExtractorConfig struct {
	Kind string `mapstructure:"kind"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
}

// AWSConfig holds settings for real provisioning.
type AWSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Region  string `mapstructure:"region"`
	Profile string `mapstructure:"profile"`
	ImageID string `mapstructure:"image_id"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// EnabledAgents converts the configured agent names to agent types.
func (c *Config) EnabledAgents() ([]models.AgentType, error) {
	types := make([]models.AgentType, 0, len(c.Agents.Enabled))
	for _, name := range c.Agents.Enabled {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t, ok := models.ParseAgentType(name)
		if !ok {
			return nil, fmt.Errorf("agents.enabled: unknown agent type %q", name)
		}
		types = append(types, t)
	}
	return types, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.EnabledAgents(); err != nil {
		errs = append(errs, err)
	}
	switch c.Extractor.Kind {
	case "", "empty", "regex", "claude":
	default:
		errs = append(errs, fmt.Errorf("extractor.kind: unknown kind %q", c.Extractor.Kind))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Orchestrator.TaskTimeout < 0 {
		errs = append(errs, errors.New("orchestrator.task_timeout: must not be negative"))
	}
	if c.AWS.Enabled && c.AWS.ImageID == "" {
		errs = append(errs, errors.New("aws.image_id: required when aws.enabled is true"))
	}
	return errors.Join(errs...)
}

// APIKey returns the Anthropic API key, preferring ANTHROPIC_API_KEY.
// Unexpanded ${VAR} references count as unset.
func (c *Config) APIKey() string {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	key := expandEnv(c.Anthropic.APIKey)
	if strings.HasPrefix(key, "${") {
		return ""
	}
	return key
}

// Settings returns the configuration as a nested map with durations
// rendered as strings, suitable for YAML output.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"knowledge": map[string]any{"path": c.Knowledge.Path},
		"archive":   map[string]any{"path": c.Archive.Path},
		"orchestrator": map[string]any{
			"task_timeout":         c.Orchestrator.TaskTimeout.String(),
			"parallel_dispatch":    c.Orchestrator.ParallelDispatch,
			"reject_invalid_plans": c.Orchestrator.RejectInvalidPlans,
		},
		"agents":    map[string]any{"enabled": append([]string(nil), c.Agents.Enabled...)},
		"extractor": map[string]any{"kind": c.Extractor.Kind},
		"anthropic": map[string]any{
			"api_key":     redact(c.Anthropic.APIKey),
			"model":       c.Anthropic.Model,
			"use_bedrock": c.Anthropic.UseBedrock,
		},
		"aws": map[string]any{
			"enabled":  c.AWS.Enabled,
			"region":   c.AWS.Region,
			"profile":  c.AWS.Profile,
			"image_id": c.AWS.ImageID,
		},
		"server": map[string]any{"addr": c.Server.Addr},
		"log": map[string]any{
			"level":  c.Log.Level,
			"format": c.Log.Format,
			"file":   c.Log.File,
		},
		"tui": map[string]any{"refresh_rate": c.TUI.RefreshRate.String()},
	}
}

// redact hides all but the last four characters of literal secrets.
func redact(s string) string {
	if s == "" || strings.HasPrefix(s, "${") {
		return s
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (OPSMESH_*, ANTHROPIC_API_KEY, AWS_REGION)
// 2. Project config (.opsmesh.yaml in current directory or parent)
// 3. User config (~/.config/opsmesh/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	// Load user config from XDG path
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	// Merge project config (takes precedence)
	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file on top of the
// defaults. Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return decode(v)
}

// Watch re-runs load whenever the file at path is written and passes the
// result to onChange. It returns after the watch is installed.
func Watch(path string, load func() (*Config, error), onChange func(*Config, error)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(load())
	})
	v.WatchConfig()
	return nil
}

// Save writes cfg to the given YAML file, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	settings := cfg.Settings()
	// Save keeps the secret as written.
	settings["anthropic"].(map[string]any)["api_key"] = cfg.Anthropic.APIKey
	if err := v.MergeConfigMap(settings); err != nil {
		return fmt.Errorf("building config: %w", err)
	}
	return v.WriteConfigAs(path)
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// ActiveFiles returns the config files that exist, lowest precedence first.
func ActiveFiles() []string {
	var files []string
	if _, err := os.Stat(GetUserConfigPath()); err == nil {
		files = append(files, GetUserConfigPath())
	}
	if p := findProjectConfig(); p != "" {
		files = append(files, p)
	}
	return files
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known variables outside the prefix.
	_ = v.BindEnv("anthropic.api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("aws.region", EnvPrefix+"_AWS_REGION", "AWS_REGION")
	_ = v.BindEnv("aws.profile", EnvPrefix+"_AWS_PROFILE", "AWS_PROFILE")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Expand ${VAR} references
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("knowledge.path", d.Knowledge.Path)
	v.SetDefault("archive.path", d.Archive.Path)

	v.SetDefault("orchestrator.task_timeout", d.Orchestrator.TaskTimeout.String())
	v.SetDefault("orchestrator.parallel_dispatch", d.Orchestrator.ParallelDispatch)
	v.SetDefault("orchestrator.reject_invalid_plans", d.Orchestrator.RejectInvalidPlans)

	v.SetDefault("agents.enabled", d.Agents.Enabled)
	v.SetDefault("extractor.kind", d.Extractor.Kind)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("aws.enabled", false)
	v.SetDefault("aws.region", d.AWS.Region)
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.image_id", "")

	v.SetDefault("server.addr", d.Server.Addr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", "")

	v.SetDefault("tui.refresh_rate", d.TUI.RefreshRate.String())
}

// getUserConfigDir returns the XDG config directory for opsmesh.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "opsmesh")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "opsmesh")
	}
	return filepath.Join(home, ".config", "opsmesh")
}

// findProjectConfig searches for .opsmesh.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Knowledge: KnowledgeConfig{
			Path: filepath.Join(".opsmesh", "knowledge.json"),
		},
		Archive: ArchiveConfig{
			Path: filepath.Join(".opsmesh", "archive.db"),
		},
		Orchestrator: OrchestratorConfig{
			TaskTimeout: 5 * time.Minute,
		},
		Agents: AgentsConfig{
			Enabled: []string{"infrastructure", "deployment", "monitoring"},
		},
		Extractor: ExtractorConfig{
			Kind: "empty",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku-4-5-20251001",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Server: ServerConfig{
			Addr: ":5000",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}
