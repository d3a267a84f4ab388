package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/sessionstore/pkg/httpserver"
	"github.com/dmitrymomot/sessionstore/pkg/logger"
	"github.com/dmitrymomot/sessionstore/pkg/session"
)

var cleanOpts struct {
	file        string
	backend     string
	interval    time.Duration
	migrate     bool
	metricsAddr string
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete expired sessions",
	Long: `Delete every session whose idle or absolute deadline has passed.

Only the timeouts enabled by the capabilities are checked. Without
--interval a single pass runs and its counts are printed; with it the
command keeps cleaning until interrupted.

Examples:
  sessiongc clean --backend postgres --config session.yaml
  sessiongc clean --backend redis --interval 5m --metrics-addr :9102`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	f := cleanCmd.Flags()
	f.StringVar(&cleanOpts.file, "config", "", "session settings YAML file")
	f.StringVar(&cleanOpts.backend, "backend", backendPostgres, "storage backend: postgres or redis")
	f.DurationVar(&cleanOpts.interval, "interval", 0, "repeat every interval instead of running once")
	f.BoolVar(&cleanOpts.migrate, "migrate", false, "apply the Postgres schema migrations first")
	f.StringVar(&cleanOpts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := newLogger(cmd.ErrOrStderr()).With(logger.Backend(cleanOpts.backend))

	b, err := openBackend(ctx, cleanOpts.backend, cleanOpts.migrate, log)
	if err != nil {
		return err
	}
	defer b.close()

	cfg, err := resolveSettings(cleanOpts.file, b.caps)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := session.NewMetrics(reg)
	if cleanOpts.metricsAddr != "" {
		go serveMetrics(ctx, cleanOpts.metricsAddr, reg, b.ping, log)
	}

	reaper := session.NewReaper(b.store, cfg,
		session.WithReaperLogger(log),
		session.WithReaperMetrics(metrics),
	)

	if cleanOpts.interval <= 0 {
		start := time.Now()
		rep, err := reaper.Clean(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d idle=%d absolute=%d failed=%d in %s\n",
			rep.Scanned, rep.Idle, rep.Absolute, rep.Failed, time.Since(start).Round(time.Millisecond))
		if rep.Failed > 0 {
			return fmt.Errorf("%d expired sessions could not be removed", rep.Failed)
		}
		return nil
	}

	log.InfoContext(ctx, "session cleanup started", logger.Duration(cleanOpts.interval))
	if err := reaper.Run(ctx, cleanOpts.interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.InfoContext(ctx, "session cleanup stopped")
	return nil
}

// serveMetrics exposes the registry and probes until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, ping httpserver.Check, log *slog.Logger) {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/livez", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, ping))

	srv := httpserver.New(httpserver.WithAddr(addr), httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil {
		log.ErrorContext(ctx, "metrics server failed", logger.Error(err))
	}
}
