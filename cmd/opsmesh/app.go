package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/agent"
	"github.com/ShayCichocki/opsmesh/internal/config"
	"github.com/ShayCichocki/opsmesh/internal/extract"
	"github.com/ShayCichocki/opsmesh/internal/knowledge"
	"github.com/ShayCichocki/opsmesh/internal/logging"
	"github.com/ShayCichocki/opsmesh/internal/orchestrator"
	"github.com/ShayCichocki/opsmesh/internal/state"
)

// app holds the components shared by the subcommands.
type app struct {
	cfg     *config.Config
	log     *logging.Logger
	kb      *knowledge.KnowledgeBase
	archive *state.DB
	orch    *orchestrator.Orchestrator
}

// appOptions selects the optional parts of an app.
type appOptions struct {
	// eventBuffer enables orchestrator events when positive.
	eventBuffer int
	// metrics are updated by the orchestrator when set.
	metrics *orchestrator.Metrics
}

// loadConfig reads the --config file when given, else the layered config.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// logConfig applies the --log-level override.
func logConfig(cfg *config.Config) logging.Config {
	lc := logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}
	if logLevel != "" {
		lc.Level = logLevel
	}
	return lc
}

// newApp wires the knowledge base, archive, agents and orchestrator from cfg.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	log, err := logging.New(logConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}

	kbOpts := []knowledge.Option{knowledge.WithLogger(log.Named("knowledge"))}
	if cfg.Knowledge.Path != "" {
		a.kb = knowledge.Open(cfg.Knowledge.Path, kbOpts...)
	} else {
		a.kb = knowledge.New(kbOpts...)
	}

	if cfg.Archive.Path != "" {
		a.archive, err = state.OpenArchive(cfg.Archive.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
	}

	ex, err := extract.New(cfg.Extractor.Kind, extract.ClaudeConfig{
		Model:         cfg.Anthropic.Model,
		APIKey:        cfg.APIKey(),
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.AWS.Region,
		AWSProfile:    cfg.AWS.Profile,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create extractor: %w", err)
	}

	var prov agent.Provisioner
	if cfg.AWS.Enabled {
		p, err := agent.NewAWSProvisioner(ctx, agent.AWSConfig{
			Region:  cfg.AWS.Region,
			Profile: cfg.AWS.Profile,
			ImageID: cfg.AWS.ImageID,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create aws provisioner: %w", err)
		}
		prov = p
	}

	enabled, err := cfg.EnabledAgents()
	if err != nil {
		a.Close()
		return nil, err
	}
	agents, err := agent.NewDefaultSet(a.kb, prov, enabled, agent.WithLogger(log.Named("agent")))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create agents: %w", err)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(log.Logger),
		orchestrator.WithExtractor(ex),
		orchestrator.WithTaskTimeout(cfg.Orchestrator.TaskTimeout),
		orchestrator.WithParallelDispatch(cfg.Orchestrator.ParallelDispatch),
		orchestrator.WithRejectInvalidPlans(cfg.Orchestrator.RejectInvalidPlans),
	}
	if a.archive != nil {
		orchOpts = append(orchOpts, orchestrator.WithArchive(a.archive))
	}
	if opts.metrics != nil {
		orchOpts = append(orchOpts, orchestrator.WithMetrics(opts.metrics))
	}
	if opts.eventBuffer > 0 {
		orchOpts = append(orchOpts, orchestrator.WithEvents(opts.eventBuffer))
	}
	a.orch = orchestrator.New(a.kb, agents, orchOpts...)

	log.Debug("app ready",
		zap.Int("agents", len(agents)),
		zap.String("knowledge", cfg.Knowledge.Path),
		zap.String("archive", cfg.Archive.Path),
		zap.String("extractor", cfg.Extractor.Kind))
	return a, nil
}

// Close waits for running plans and releases every component.
func (a *app) Close() {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.log.Warn("close archive failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
