package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/DerMene/cassandra-loader/internal/pipeline"
	"github.com/DerMene/cassandra-loader/pkg/config"
	"github.com/DerMene/cassandra-loader/pkg/logger"
	"github.com/DerMene/cassandra-loader/pkg/metrics"
	"github.com/DerMene/cassandra-loader/pkg/observability"
	"github.com/DerMene/cassandra-loader/pkg/session"
)

// run connects to the cluster and executes one load or unload.
func run(ctx context.Context, cfg *config.Config, mode config.Mode) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.With(zap.String("component", "cli"), zap.String("mode", string(mode)))

	if err := observability.Initialize(cfg.TracingConfig(version)); err != nil {
		return err
	}
	defer func() {
		if err := observability.Shutdown(context.Background()); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if cfg.Observability.MetricsAddr != "" {
		if _, err := metrics.Serve(ctx, cfg.Observability.MetricsAddr); err != nil {
			return fmt.Errorf("failed to serve metrics: %w", err)
		}
	}

	s, err := session.Open(cfg.SessionConfig())
	if err != nil {
		return err
	}
	defer s.Close()

	switch mode {
	case config.ModeLoad:
		summary, err := pipeline.NewLoader(cfg, s).Run(ctx)
		if summary != nil {
			printLoadSummary(os.Stderr, summary)
		}
		return err
	default:
		summary, err := pipeline.NewUnloader(cfg, s).Run(ctx)
		if summary != nil {
			printUnloadSummary(os.Stderr, summary)
		}
		return err
	}
}

func printLoadSummary(w io.Writer, s *pipeline.Summary) {
	rate := 0.0
	if secs := s.Duration.Seconds(); secs > 0 {
		rate = float64(s.Inserted) / secs
	}
	fmt.Fprintf(w, "Lines Processed: \t%d  Rate: \t%.2f\n", s.Lines, rate)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func printUnloadSummary(w io.Writer, s *pipeline.Summary) {
	fmt.Fprintf(w, "Total rows retrieved: %d\n", s.Unloaded)
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
