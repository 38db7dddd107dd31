// Package cmd provides the CLI commands for mnemo.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/engine"
	"github.com/mnemo-dev/mnemo/internal/logging"
	"github.com/mnemo-dev/mnemo/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func() error
)

// NewRootCmd builds mnemo's root cobra command and every subcommand.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "mnemo",
		Short:   "Local-first semantic memory engine for source code and developer notes",
		Version: version.Version,
		Long: `mnemo ingests source files and developer notes, extracts structured
entities (decisions, tasks, problems, solutions), and answers natural
language queries with a token-budgeted context assembled from exact,
keyword, and semantic retrieval.`,
	}
	root.SetVersionTemplate("mnemo version {{.Version}}\n")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to <data-dir>/mnemo.log")
	root.PersistentPreRunE = startLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newServeCmd())
	root.AddCommand(newIngestCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newFetchCmd())
	root.AddCommand(newJobsCmd())
	root.AddCommand(newDecisionsCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func startLogging(_ *cobra.Command, _ []string) error {
	root, dataDir := resolveDataDir()
	_ = root
	logCfg := logging.DefaultConfig(dataDir)
	logCfg.WriteToStderr = debugMode
	if debugMode {
		logCfg.Level = "debug"
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		_ = loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// resolveProjectRoot finds the nearest project root (a .git directory
// or .mnemo.yaml) from the current working directory, falling back to
// cwd itself.
func resolveProjectRoot() string {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return root
}

// resolveDataDir returns the project root and its mnemo data
// directory, without requiring a loaded Config (used before logging
// is set up, where a config-load failure shouldn't block startup).
func resolveDataDir() (root, dataDir string) {
	root = resolveProjectRoot()
	return root, filepath.Join(root, ".mnemo")
}

// loadEngine loads config for root and constructs an Engine over it.
// Callers must Close() the returned Engine.
func loadEngine(root string) (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	eng, err := engine.New(cfg, root)
	if err != nil {
		return nil, nil, fmt.Errorf("start engine: %w", err)
	}
	return eng, cfg, nil
}
