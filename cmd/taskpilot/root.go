package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/config"
	"github.com/taskpilot/taskpilot/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "taskpilot",
	Short: "Task management with AI-powered breakdown",
	Long: `TaskPilot manages tasks and decomposes them into ordered subtasks
using the Anthropic API.

A task submitted for breakdown is processed asynchronously: a worker
calls the model, parses the proposed subtasks, and persists them in one
batch. Failed calls are retried with a fixed backoff before the request
is marked failed.

Run 'taskpilot serve' to expose the same operations over HTTP.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(breakdownCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and validates configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openDatabase opens the configured database and brings the schema up to
// date. The caller closes it.
func openDatabase(cfg *config.Config) (*store.DB, error) {
	path := cfg.Database.Path
	if path == "" {
		path = store.DefaultDBPath()
	}

	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}
