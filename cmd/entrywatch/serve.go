package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/entrywatch"
	"github.com/jpalmerr/entrywatch/config"
	"github.com/jpalmerr/entrywatch/dashboard"
	"github.com/jpalmerr/entrywatch/internal/ledger"
	"github.com/jpalmerr/entrywatch/internal/notify"
	"github.com/jpalmerr/entrywatch/internal/persist"
	"github.com/jpalmerr/entrywatch/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the watcher and the dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start watching and serve the dashboard",
	Long: `Start the entrywatch engine and its HTTP server.

The server will:
  - Load configuration from the YAML file, if one is given
  - Restore targets saved in the database, then add the configured ones
  - Poll every target on its own schedule and fire alerts
  - Serve the dashboard, the admin API and /metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  entrywatch serve -c entrywatch.yaml
  entrywatch serve --db entrywatch.db --port 9000`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides the config file)")
	serveCmd.Flags().String("db", "", "SQLite path or postgres:// URL (overrides the config file)")
}

func loadServeConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Port = port
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Database = db
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	specs, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}
	notifier, err := config.BuildNotifiers(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build notifiers: %w", err)
	}
	opts, err := config.WatcherOptions(cfg)
	if err != nil {
		return err
	}

	logger.Info("config loaded",
		"targets", len(cfg.Targets),
		"grids", len(cfg.Grids),
		"notifiers", len(cfg.Notifiers),
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	feed := server.NewAlertFeed()

	opts = append(opts,
		entrywatch.WithTargets(specs...),
		entrywatch.WithLogger(logger),
		entrywatch.WithNotifier(notify.Multi{notifier, feed}),
		entrywatch.WithRegisterer(reg),
	)

	if cfg.Database != "" {
		p, err := persist.Open(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if err := p.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}()
		opts = append(opts, entrywatch.WithPersister(p))
	}

	if cfg.Ledger.RedisURL != "" {
		client, err := ledger.Connect(ctx, cfg.Ledger.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect cooldown ledger: %w", err)
		}
		defer func() { _ = client.Close() }()
		opts = append(opts, entrywatch.WithLedger(ledger.NewRedis(client, cfg.Ledger.Prefix)))
	}

	w, err := entrywatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	srv := server.NewServer(w, cfg.Port, dashboard.Assets, cfg.Title, logger,
		server.WithAlertFeed(feed),
		server.WithGatherer(reg),
	)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	return runUntilDone(ctx, logger, func() error { return w.Start(ctx) })
}

// runUntilDone runs start in the background and waits for it, giving it
// shutdownTimeout to return once ctx is cancelled.
func runUntilDone(ctx context.Context, logger *slog.Logger, start func() error) error {
	errChan := make(chan error, 1)
	go func() {
		errChan <- start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("watcher error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("watcher error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
