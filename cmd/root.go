package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/engine"
	"github.com/cwbudde/portfolioopt/internal/logger"
	"github.com/cwbudde/portfolioopt/internal/store"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "portfolioopt",
	Short: "Portfolio black-box minimization",
	Long: `portfolioopt races several independent runs of a derivative-free minimizer
over a typed problem and keeps the best point any of them evaluated.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		slog.SetDefault(logger.New(logLevel, os.Stdout))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCmd(),
		newResumeCmd(),
		newServeCmd(),
		newStatusCmd(),
		newResultsCmd(),
		newProblemsCmd(),
		newVersionCmd(),
	)
}

// storeOptions selects the result store of a command.
type storeOptions struct {
	dataDir string
	kind    string
}

func (o *storeOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.dataDir, "data-dir", "./data", "Base directory for run records")
	cmd.Flags().StringVar(&o.kind, "store", "fs", storeFlagUsage())
}

func storeFlagUsage() string {
	return "Result store backend (" + strings.Join(store.Kinds, ", ") + ")"
}

func engineFlagUsage(prefix string) string {
	return prefix + " (" + strings.Join(engine.Kinds, ", ") + ")"
}

// open opens the configured store. The sqlite backend keeps its database
// file inside the data directory.
func (o *storeOptions) open() (store.Store, error) {
	path := o.dataDir
	if o.kind == "sqlite" {
		if err := os.MkdirAll(o.dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(o.dataDir, "runs.db")
	}
	s, err := store.NewStore(o.kind, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	return s, nil
}
