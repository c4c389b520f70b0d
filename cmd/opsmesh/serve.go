package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ShayCichocki/opsmesh/internal/config"
	"github.com/ShayCichocki/opsmesh/internal/orchestrator"
	"github.com/ShayCichocki/opsmesh/internal/server"
)

// shutdownTimeout bounds how long in-flight requests may take after a signal.
const shutdownTimeout = 10 * time.Second

var (
	serveAddr  string
	serveDebug bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the HTTP API for submitting requests and inspecting plans.

Endpoints:
  GET  /health            liveness check
  GET  /agents            registered agents
  POST /process           plan and run a request ({"request", "async", "plan_name"})
  POST /analyze           classify a request ({"request"})
  GET  /plans             active plans
  GET  /plans/:id         one plan, active or finished
  GET  /resources         recorded resources (?type= to filter)
  GET  /deployments       recorded deployments
  GET  /history           archived plans (?limit=)
  GET  /metrics           Prometheus metrics

Config files are watched while serving. Changes to log.level apply
immediately. Other settings take effect on restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Run the router in debug mode")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, cfg, appOptions{metrics: orchestrator.MustNewMetrics(reg)})
	if err != nil {
		return err
	}
	defer a.Close()

	srvCfg := server.DefaultConfig()
	srvCfg.Addr = cfg.Server.Addr
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	}
	srvCfg.Debug = serveDebug

	srvOpts := []server.Option{
		server.WithGatherer(reg),
		server.WithLogger(a.log.Logger),
	}
	if a.archive != nil {
		srvOpts = append(srvOpts, server.WithArchive(a.archive))
	}
	srv := server.New(a.orch, srvCfg, srvOpts...)

	watchConfig(a)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// watchConfig applies log level changes from the active config files.
func watchConfig(a *app) {
	files := config.ActiveFiles()
	if configPath != "" {
		files = []string{configPath}
	}
	for _, f := range files {
		err := config.Watch(f, loadConfig, func(cfg *config.Config, err error) {
			if err != nil {
				a.log.Warn("reload config failed", zap.String("file", f), zap.Error(err))
				return
			}
			level := logConfig(cfg).Level
			if err := a.log.SetLevel(level); err != nil {
				a.log.Warn("apply log level failed", zap.String("level", level), zap.Error(err))
				return
			}
			a.log.Info("config reloaded", zap.String("file", f), zap.String("log_level", level))
		})
		if err != nil {
			a.log.Warn("watch config failed", zap.String("file", f), zap.Error(err))
		}
	}
}
