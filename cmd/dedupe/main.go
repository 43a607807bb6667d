// Command dedupe runs contact cleanup from an operator shell.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"qero/api/internal/app"
	"qero/api/internal/config"
	"qero/api/internal/dedupe"
)

type globalOptions struct {
	teamID   string
	actor    string
	jsonOut  bool
	logLevel string
}

var (
	opts    globalOptions
	backend *app.Runtime
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "dedupe",
	Short:         "Find, merge and restore duplicate contacts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		level := opts.logLevel
		if level == "" {
			level = cfg.LogLevel
		}
		var err error
		logger, err = app.NewLogger(level)
		if err != nil {
			return err
		}
		backend, err = app.Open(cmd.Context(), cfg, logger)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if backend != nil {
			backend.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&opts.teamID, "team", "", "Team UUID to scope the run to (default: all teams)")
	rootCmd.PersistentFlags().StringVar(&opts.actor, "actor", os.Getenv("USER"), "Operator name recorded in audit rows")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "Print raw JSON instead of a summary")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (default: QERO_LOG_LEVEL)")

	rootCmd.AddCommand(previewCmd, applyCmd, restoreCmd, archivedCmd, importCmd)
}

// operator is the CLI actor. Shell access to the database already implies
// administrative rights.
func operator() dedupe.Actor {
	return dedupe.Actor{Name: opts.actor, Role: "admin"}
}

func scope() dedupe.Scope {
	return dedupe.Scope{TeamID: opts.teamID}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
