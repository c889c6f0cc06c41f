package main

import (
	"os"
	"os/signal"
	"syscall"

	"checkerminer/internal/config"
	"checkerminer/internal/logging"
	"checkerminer/internal/perception"
	"checkerminer/internal/server"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve forward requests over HTTP",
	Long: `Starts the HTTP server:

  POST /forward            {"query": ["id", ...]} -> {"response": [score|null, ...]}
  GET  /predictions/{id}   current prediction: cached score first, then the
                           latest stored one
  GET  /healthz            liveness (?verbose=true runs component checks)
  GET  /readyz             readiness: 503 while the cache backend is down
  GET  /metrics            Prometheus metrics

The config file is watched; log level and LLM model changes apply without a
restart.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var history server.History
	if a.store != nil {
		history = a.store
	}
	srv := server.New(a.miner, a.predictions, history, server.Config{
		RateLimit:       cfg.Server.RateLimit,
		ShutdownTimeout: cfg.GetShutdownTimeout(),
		Health:          a.healthManager(cfg.Cache.Backend),
	}, logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Server.Listen)
	})

	if _, err := os.Stat(configPath); err == nil {
		watcher, err := config.NewWatcher(configPath, a.applyReload)
		if err != nil {
			logging.BootWarn("config hot reload disabled: %v", err)
		} else {
			g.Go(func() error { return watcher.Run(gctx) })
		}
	}

	logger.Info("miner serving", zap.String("listen", cfg.Server.Listen), zap.String("model", cfg.LLM.Model))
	return g.Wait()
}

// applyReload applies the settings that can change at runtime.
func (a *app) applyReload(next *config.Config) {
	if next.Logging.Level != cfg.Logging.Level {
		if err := logging.SetLevel(next.Logging.Level); err != nil {
			logging.BootWarn("ignoring log level %q: %v", next.Logging.Level, err)
		} else {
			logging.Boot("log level changed %s -> %s", cfg.Logging.Level, next.Logging.Level)
			cfg.Logging.Level = next.Logging.Level
		}
	}

	if next.LLM.Model != cfg.LLM.Model && next.LLM.Provider == cfg.LLM.Provider {
		if next.LLM.Model != "" && perception.SetModel(a.llm, next.LLM.Model) {
			logging.Boot("LLM model changed %s -> %s", cfg.LLM.Model, next.LLM.Model)
			cfg.LLM.Model = next.LLM.Model
		} else {
			logging.BootWarn("ignoring LLM model %q", next.LLM.Model)
		}
	}
}
