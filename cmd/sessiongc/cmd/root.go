// Package cmd provides the CLI commands of sessiongc.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/sessionstore/pkg/config"
	"github.com/dmitrymomot/sessionstore/pkg/logger"
)

var (
	envFiles []string
	logEnv   string
)

var rootCmd = &cobra.Command{
	Use:   "sessiongc",
	Short: "Maintenance tool for the session store",
	Long: `sessiongc maintains server-side sessions.

Commands:
  clean      Delete expired sessions, once or periodically
  keygen     Generate a cookie secret
  settings   Validate session settings and print the resolved values

Session settings are read from a YAML file (--config) and SESSION_*
environment variables, e.g. SESSION_IDLE_TIMEOUT=900. The optional
"capabilities" setting narrows the features the backend offers.

Connections are configured through PG_* and REDIS_* variables, which may
also come from .env files (--env-file).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, ".env files to load (default: ./.env if present)")
	rootCmd.PersistentFlags().StringVar(&logEnv, "log-env", logger.EnvDevelopment, "log preset: development (text) or production (JSON)")
}

func newLogger(w io.Writer) *slog.Logger {
	return logger.New(
		logger.WithEnvironment(logEnv, "sessiongc"),
		logger.WithOutput(w),
	)
}

// loadEnv fills an env-tagged struct, reading the --env-file files first.
func loadEnv[T any](v *T) error {
	return config.Load(v, envFiles...)
}
