// Package main implements the taskdeck CLI: scriptable access to the task
// workflow engine that the interactive UI builds on.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskdeck/internal/config"
	"github.com/fyrsmithlabs/taskdeck/internal/logging"
	"github.com/fyrsmithlabs/taskdeck/internal/taskstore"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskdeck",
	Short: "Task workflow engine for AI-assisted development",
	Long: `taskdeck manages the task lifecycle behind the taskdeck UI: statuses,
workflow steps, and exclusive git worktrees per subtask.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/taskdeck/config.yaml)")
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cycleCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(resolveCmd)
}

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *taskstore.Store
}

func loadApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	store, err := taskstore.Open(cfg.Tasks.File, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, store: store}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
