package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/breakdown"
	"github.com/taskpilot/taskpilot/internal/config"
	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/notify"
	"github.com/taskpilot/taskpilot/internal/server"
	"github.com/taskpilot/taskpilot/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Start the TaskPilot HTTP server with the breakdown worker pool.

The server exposes task CRUD, breakdown submission and status endpoints
under /api. Breakdown requests are processed asynchronously by a worker
pool; a reconciler periodically fails records orphaned by crashes.

Operational signals can be sent by dropping files into the signals
directory next to the database:
  stop   - shut the server down gracefully
  drain  - stop accepting new breakdown requests`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.Anthropic.UseAWSBedrock {
		key, _ := config.GetAPIKey(cfg)
		log.Printf("[serve] anthropic key %s (source: %s)",
			config.MaskAPIKey(key), config.GetAPIKeySource(cfg))
	}

	bus := event.NewBus(128, 2)
	bus.Subscribe(notify.LogNotifier{})
	bus.Subscribe(notify.NewDBNotifier(db))

	pool := breakdown.NewPool(breakdown.PoolConfig{
		DB:        db,
		Generator: newGenerator(cfg),
		Bus:       bus,
		Workers:   cfg.Breakdown.Workers,
		QueueSize: cfg.Breakdown.QueueSize,
		Executor: breakdown.ExecutorConfig{
			MaxAttempts:    cfg.Breakdown.MaxAttempts,
			Backoff:        cfg.Breakdown.Backoff,
			AttemptTimeout: cfg.Breakdown.AttemptTimeout,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := breakdown.NewReconciler(db, bus, 0, 0)
	go reconciler.Run(ctx)

	watcher, err := server.NewSignalWatcher(dataDir(cfg))
	if err != nil {
		return fmt.Errorf("create signal watcher: %w", err)
	}
	defer watcher.Close()
	watcher.ClearSignals()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	srv := server.New(addr, db, pool)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	draining := false
	for {
		select {
		case err := <-errCh:
			// ListenAndServe returned before we asked it to.
			pool.Stop()
			bus.Close()
			return err
		case sig := <-sigCh:
			log.Printf("[serve] received %s, shutting down", sig)
			return shutdown(srv, pool, bus)
		case <-ticker.C:
			if watcher.ShouldStop() {
				log.Printf("[serve] stop signal received, shutting down")
				return shutdown(srv, pool, bus)
			}
			if !draining && watcher.ShouldDrain() {
				log.Printf("[serve] drain signal received, rejecting new breakdowns")
				srv.SetDraining(true)
				draining = true
			}
		}
	}
}

// shutdown drains HTTP, then stops the pipeline in dependency order.
func shutdown(srv *server.Server, pool *breakdown.Pool, bus *event.Bus) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(ctx)
	pool.Stop()
	bus.Close()
	return err
}

// dataDir returns the directory the signal files live in, next to the
// database file.
func dataDir(cfg *config.Config) string {
	path := cfg.Database.Path
	if path == "" {
		path = store.DefaultDBPath()
	}
	return filepath.Dir(path)
}
